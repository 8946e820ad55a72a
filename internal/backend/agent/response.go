package agent

import (
	"fmt"
	"strings"
	"time"
)

// ResponseType tags the structured agent response.
type ResponseType string

const (
	TypeTime     ResponseType = "time"
	TypeDate     ResponseType = "date"
	TypeWeather  ResponseType = "weather"
	TypeCombined ResponseType = "combined"
	TypeError    ResponseType = "error"
)

// requiredKeys lists the data fields each response type must carry.
// Combined is special-cased: it needs at least one of its keys, not all.
var requiredKeys = map[ResponseType][]string{
	TypeTime:     {"time", "timezone"},
	TypeDate:     {"date", "day_of_week"},
	TypeWeather:  {"temperature", "condition"},
	TypeCombined: {"time", "date", "weather"},
	TypeError:    {"error_message"},
}

// Response is the structured result of one agent invocation.
// Ephemeral: constructed per invocation, formatted into a Message for
// persistence, then discarded.
type Response struct {
	AgentID   string            `json:"agent_id"`
	Type      ResponseType      `json:"response_type"`
	Data      map[string]string `json:"data"`
	Location  string            `json:"location"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewResponse constructs a validated response. Construction fails when
// the type-specific required fields are absent.
func NewResponse(agentID string, rt ResponseType, location string, data map[string]string) (*Response, error) {
	keys, ok := requiredKeys[rt]
	if !ok {
		return nil, fmt.Errorf("unknown response type %q", rt)
	}

	if rt == TypeCombined {
		found := false
		for _, k := range keys {
			if data[k] != "" {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: combined response needs at least one of time/date/weather", ErrMissingData)
		}
	} else {
		for _, k := range keys {
			if data[k] == "" {
				return nil, fmt.Errorf("%w: %s response needs %q", ErrMissingData, rt, k)
			}
		}
	}

	return &Response{
		AgentID:   agentID,
		Type:      rt,
		Data:      data,
		Location:  location,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorResponse constructs an error-typed response.
func NewErrorResponse(agentID, location, message string) *Response {
	return &Response{
		AgentID:   agentID,
		Type:      TypeError,
		Data:      map[string]string{"error_message": message},
		Location:  location,
		Timestamp: time.Now().UTC(),
	}
}

// Format renders the response as user-facing display text. The switch is
// exhaustive over the response types; unknown types fall through to the
// error rendering so nothing silently disappears.
func (r *Response) Format() string {
	switch r.Type {
	case TypeTime:
		return fmt.Sprintf("Current time in %s: %s (%s)", r.Location, r.Data["time"], r.Data["timezone"])
	case TypeDate:
		return fmt.Sprintf("Current date in %s: %s (%s)", r.Location, r.Data["date"], r.Data["day_of_week"])
	case TypeWeather:
		s := fmt.Sprintf("Weather in %s: %s, %s", r.Location, r.Data["condition"], r.Data["temperature"])
		if h := r.Data["humidity"]; h != "" {
			s += ", Humidity: " + h
		}
		return s
	case TypeCombined:
		parts := make([]string, 0, 4)
		parts = append(parts, r.Location+" Information:")
		for _, k := range []string{"time", "date", "weather"} {
			if v := r.Data[k]; v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, "\n")
	case TypeError:
		return r.Data["error_message"]
	default:
		return fmt.Sprintf("unsupported agent response type %q", r.Type)
	}
}

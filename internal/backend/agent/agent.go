// Package agent implements the Birmingham tool agent: a small one-shot
// backend answering time, date, and weather commands for a fixed
// location. Unlike the chat and knowledge backends it does not stream;
// each invocation returns a single structured Response.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vulcanlabs/vulcan/internal/log"
)

// Defaults for the agent identity.
const (
	DefaultAgentID  = "birmingham-agent"
	DefaultLocation = "Birmingham, Alabama"
	DefaultTimezone = "America/Chicago"
)

// Command is the normalized command token the agent executes.
type Command string

const (
	CommandTime    Command = "time"
	CommandDate    Command = "date"
	CommandWeather Command = "weather"
	CommandAll     Command = "all"
)

// commandTerms maps each concrete command to its trigger vocabulary.
var commandTerms = []struct {
	cmd   Command
	terms []string
}{
	{CommandTime, []string{"time", "current_time", "get_time"}},
	{CommandDate, []string{"date", "current_date", "get_date"}},
	{CommandWeather, []string{"weather", "current_weather", "get_weather"}},
}

// Normalize maps raw user text to a command token. When the text names
// several commands, the one appearing earliest in the message wins.
// Text matching none of the command vocabularies yields CommandAll.
func Normalize(text string) Command {
	lower := strings.ToLower(text)

	cmd := CommandAll
	earliest := -1
	for _, ct := range commandTerms {
		for _, term := range ct.terms {
			idx := strings.Index(lower, term)
			if idx < 0 {
				continue
			}
			if earliest < 0 || idx < earliest {
				cmd, earliest = ct.cmd, idx
			}
		}
	}
	return cmd
}

// Config configures the tool agent.
type Config struct {
	Logger log.Logger

	// AgentID identifies this agent in metrics and message metadata.
	// Empty = DefaultAgentID.
	AgentID string

	// Location is the display location for responses. Empty = DefaultLocation.
	Location string

	// Timezone is the IANA zone for time/date answers. Empty = DefaultTimezone.
	Timezone string

	// WeatherAPIKey enables live weather via OpenWeather. Empty = fixed
	// mock conditions, which keeps local development network-free.
	WeatherAPIKey string

	// HTTPClient for the weather API. nil = default client with timeout.
	HTTPClient *http.Client
}

// Agent answers time/date/weather commands for one location.
// Safe for concurrent use.
type Agent struct {
	logger   log.Logger
	agentID  string
	location string
	loc      *time.Location
	weather  *weatherClient
	now      func() time.Time // injectable clock for tests
}

// New creates the tool agent. The timezone must resolve against the
// system zone database.
func New(cfg Config) (*Agent, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.AgentID == "" {
		cfg.AgentID = DefaultAgentID
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	return &Agent{
		logger:   cfg.Logger,
		agentID:  cfg.AgentID,
		location: cfg.Location,
		loc:      loc,
		weather:  newWeatherClient(cfg.WeatherAPIKey, cfg.HTTPClient, cfg.Logger),
		now:      time.Now,
	}, nil
}

// ID returns the agent identity used in metadata and metrics.
func (a *Agent) ID() string {
	return a.agentID
}

// Invoke executes one command and returns its structured response.
// Unknown commands are treated as CommandAll.
func (a *Agent) Invoke(ctx context.Context, cmd Command) (*Response, error) {
	switch cmd {
	case CommandTime:
		return a.timeResponse()
	case CommandDate:
		return a.dateResponse()
	case CommandWeather:
		return a.weatherResponse(ctx)
	case CommandAll:
		return a.combinedResponse(ctx)
	default:
		a.logger.Debug("unknown agent command, treating as all", "command", cmd)
		return a.combinedResponse(ctx)
	}
}

func (a *Agent) timeResponse() (*Response, error) {
	now := a.now().In(a.loc)
	return NewResponse(a.agentID, TypeTime, a.location, map[string]string{
		"time":     now.Format("3:04 PM"),
		"timezone": a.loc.String(),
	})
}

func (a *Agent) dateResponse() (*Response, error) {
	now := a.now().In(a.loc)
	return NewResponse(a.agentID, TypeDate, a.location, map[string]string{
		"date":        now.Format("January 2, 2006"),
		"day_of_week": now.Format("Monday"),
	})
}

func (a *Agent) weatherResponse(ctx context.Context) (*Response, error) {
	obs, err := a.weather.current(ctx, a.location)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}

	data := map[string]string{
		"temperature": obs.Temperature,
		"condition":   obs.Condition,
	}
	if obs.Humidity != "" {
		data["humidity"] = obs.Humidity
	}
	if obs.Pressure != "" {
		data["pressure"] = obs.Pressure
	}
	if obs.WindSpeed != "" {
		data["wind_speed"] = obs.WindSpeed
	}
	if obs.WindDirection != "" {
		data["wind_direction"] = obs.WindDirection
	}
	return NewResponse(a.agentID, TypeWeather, a.location, data)
}

// combinedResponse gathers all three answers as compact sub-parts; the
// location appears once in the combined header, not per line. Weather
// failure degrades the combined answer rather than failing it; time and
// date cannot fail.
func (a *Agent) combinedResponse(ctx context.Context) (*Response, error) {
	data := make(map[string]string, 3)

	if tr, err := a.timeResponse(); err == nil {
		data["time"] = fmt.Sprintf("Time: %s (%s)", tr.Data["time"], tr.Data["timezone"])
	}
	if dr, err := a.dateResponse(); err == nil {
		data["date"] = fmt.Sprintf("Date: %s (%s)", dr.Data["date"], dr.Data["day_of_week"])
	}
	if wr, err := a.weatherResponse(ctx); err == nil {
		line := fmt.Sprintf("Weather: %s, %s", wr.Data["condition"], wr.Data["temperature"])
		if h := wr.Data["humidity"]; h != "" {
			line += ", Humidity: " + h
		}
		data["weather"] = line
	} else {
		a.logger.Warn("weather unavailable for combined response", "error", err)
	}

	return NewResponse(a.agentID, TypeCombined, a.location, data)
}

// ErrMissingData indicates a response was constructed without the fields
// its type requires.
var ErrMissingData = errors.New("agent response missing required data")

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vulcanlabs/vulcan/internal/log"
)

func newTestAgent(t *testing.T, opts ...func(*Config)) *Agent {
	t.Helper()

	cfg := Config{Logger: log.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want Command
	}{
		{"what time is it", CommandTime},
		{"current_time", CommandTime},
		{"today's date please", CommandDate},
		{"get_date", CommandDate},
		{"weather", CommandWeather},
		{"how is the current_weather", CommandWeather},
		{"all_info", CommandAll},
		{"everything", CommandAll},
		{"gibberish", CommandAll},
		// the command named first in the message wins
		{"time and weather", CommandTime},
		{"date and time", CommandDate},
		{"weather then the time please", CommandWeather},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()

			if got := Normalize(tt.text); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestInvoke_Time(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t)
	// Winter instant: Chicago is CST (UTC-6), clear of the DST switch.
	fixed := time.Date(2026, 1, 14, 21, 35, 0, 0, time.UTC) // 3:35 PM in Chicago
	a.now = func() time.Time { return fixed }

	resp, err := a.Invoke(context.Background(), CommandTime)
	if err != nil {
		t.Fatalf("Invoke(time) error: %v", err)
	}
	if resp.Type != TypeTime {
		t.Errorf("Type = %q, want %q", resp.Type, TypeTime)
	}
	if resp.Data["time"] != "3:35 PM" {
		t.Errorf("time = %q, want %q", resp.Data["time"], "3:35 PM")
	}
	if resp.Data["timezone"] != "America/Chicago" {
		t.Errorf("timezone = %q, want America/Chicago", resp.Data["timezone"])
	}
	if want := "Current time in Birmingham, Alabama: 3:35 PM (America/Chicago)"; resp.Format() != want {
		t.Errorf("Format() = %q, want %q", resp.Format(), want)
	}
}

func TestInvoke_Date(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t)
	fixed := time.Date(2026, 1, 14, 21, 35, 0, 0, time.UTC) // Wednesday in Chicago
	a.now = func() time.Time { return fixed }

	resp, err := a.Invoke(context.Background(), CommandDate)
	if err != nil {
		t.Fatalf("Invoke(date) error: %v", err)
	}
	if want := "Current date in Birmingham, Alabama: January 14, 2026 (Wednesday)"; resp.Format() != want {
		t.Errorf("Format() = %q, want %q", resp.Format(), want)
	}
}

func TestInvoke_WeatherMock(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t) // no API key: mock conditions

	resp, err := a.Invoke(context.Background(), CommandWeather)
	if err != nil {
		t.Fatalf("Invoke(weather) error: %v", err)
	}
	if resp.Data["temperature"] != "72°F" || resp.Data["condition"] != "Partly Cloudy" {
		t.Errorf("mock observation = %v", resp.Data)
	}
	if resp.Data["pressure"] != "30.12 inHg" {
		t.Errorf("pressure = %q, want 30.12 inHg", resp.Data["pressure"])
	}
	if resp.Data["wind_speed"] != "5.2 mph" || resp.Data["wind_direction"] != "SW" {
		t.Errorf("wind = %q %q, want 5.2 mph SW", resp.Data["wind_speed"], resp.Data["wind_direction"])
	}
	want := "Weather in Birmingham, Alabama: Partly Cloudy, 72°F, Humidity: 65%"
	if resp.Format() != want {
		t.Errorf("Format() = %q, want %q", resp.Format(), want)
	}
}

func TestInvoke_WeatherLive(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("appid"); got != "test-key" {
			t.Errorf("appid = %q, want test-key", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"weather": []map[string]any{{"main": "Rain", "description": "light rain"}},
			"main":    map[string]any{"temp": 58.4, "humidity": 88, "pressure": 1016.0},
			"wind":    map[string]any{"speed": 11.27, "deg": 225.0},
		})
	}))
	defer srv.Close()

	a := newTestAgent(t, func(c *Config) {
		c.WeatherAPIKey = "test-key"
		c.HTTPClient = srv.Client()
	})
	a.weather.baseURL = srv.URL

	resp, err := a.Invoke(context.Background(), CommandWeather)
	if err != nil {
		t.Fatalf("Invoke(weather) error: %v", err)
	}
	if resp.Data["temperature"] != "58°F" {
		t.Errorf("temperature = %q, want 58°F", resp.Data["temperature"])
	}
	if resp.Data["condition"] != "Rain" {
		t.Errorf("condition = %q, want Rain", resp.Data["condition"])
	}
	if resp.Data["humidity"] != "88%" {
		t.Errorf("humidity = %q, want 88%%", resp.Data["humidity"])
	}
	if resp.Data["pressure"] != "30.00 inHg" {
		t.Errorf("pressure = %q, want 30.00 inHg", resp.Data["pressure"])
	}
	if resp.Data["wind_speed"] != "11.3 mph" {
		t.Errorf("wind_speed = %q, want 11.3 mph", resp.Data["wind_speed"])
	}
	if resp.Data["wind_direction"] != "SW" {
		t.Errorf("wind_direction = %q, want SW", resp.Data["wind_direction"])
	}
}

func TestDegreesToCardinal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{22.5, "NNE"},
		{90, "E"},
		{180, "S"},
		{225, "SW"},
		{270, "W"},
		{350, "N"},
		{359.9, "N"},
	}

	for _, tt := range tests {
		if got := degreesToCardinal(tt.deg); got != tt.want {
			t.Errorf("degreesToCardinal(%v) = %q, want %q", tt.deg, got, tt.want)
		}
	}
}

func TestInvoke_WeatherAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestAgent(t, func(c *Config) {
		c.WeatherAPIKey = "test-key"
		c.HTTPClient = srv.Client()
	})
	a.weather.baseURL = srv.URL

	if _, err := a.Invoke(context.Background(), CommandWeather); err == nil {
		t.Error("Invoke(weather) succeeded despite upstream 503")
	}
}

func TestInvoke_Combined(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t)
	fixed := time.Date(2026, 1, 14, 21, 35, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	resp, err := a.Invoke(context.Background(), CommandAll)
	if err != nil {
		t.Fatalf("Invoke(all) error: %v", err)
	}
	if resp.Type != TypeCombined {
		t.Errorf("Type = %q, want %q", resp.Type, TypeCombined)
	}

	got := resp.Format()
	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("combined format has %d lines, want 4:\n%s", len(lines), got)
	}
	if lines[0] != "Birmingham, Alabama Information:" {
		t.Errorf("header = %q", lines[0])
	}
	// Sub-parts are compact: the location appears only in the header.
	if lines[1] != "Time: 3:35 PM (America/Chicago)" {
		t.Errorf("line 1 = %q, want compact time line", lines[1])
	}
	if lines[2] != "Date: January 14, 2026 (Wednesday)" {
		t.Errorf("line 2 = %q, want compact date line", lines[2])
	}
	if lines[3] != "Weather: Partly Cloudy, 72°F, Humidity: 65%" {
		t.Errorf("line 3 = %q, want compact weather line", lines[3])
	}
}

func TestNewResponse_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rt      ResponseType
		data    map[string]string
		wantErr bool
	}{
		{name: "time complete", rt: TypeTime, data: map[string]string{"time": "1:00 PM", "timezone": "America/Chicago"}},
		{name: "time missing timezone", rt: TypeTime, data: map[string]string{"time": "1:00 PM"}, wantErr: true},
		{name: "date missing day", rt: TypeDate, data: map[string]string{"date": "March 14, 2026"}, wantErr: true},
		{name: "weather complete", rt: TypeWeather, data: map[string]string{"temperature": "72°F", "condition": "Clear"}},
		{name: "weather missing temp", rt: TypeWeather, data: map[string]string{"condition": "Clear"}, wantErr: true},
		{name: "combined with one part", rt: TypeCombined, data: map[string]string{"weather": "Weather in X: Clear, 70°F"}},
		{name: "combined empty", rt: TypeCombined, data: map[string]string{}, wantErr: true},
		{name: "error with message", rt: TypeError, data: map[string]string{"error_message": "boom"}},
		{name: "unknown type", rt: ResponseType("mystery"), data: map[string]string{"x": "y"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewResponse("a-1", tt.rt, "Birmingham, Alabama", tt.data)
			if tt.wantErr {
				if err == nil {
					t.Error("NewResponse() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Errorf("NewResponse() error: %v", err)
			}
		})
	}
}

func TestNewResponse_MissingDataSentinel(t *testing.T) {
	t.Parallel()

	_, err := NewResponse("a-1", TypeTime, "X", nil)
	if !errors.Is(err, ErrMissingData) {
		t.Errorf("error = %v, want ErrMissingData", err)
	}
}

func TestNewErrorResponse(t *testing.T) {
	t.Parallel()

	resp := NewErrorResponse("a-1", "Birmingham, Alabama", "agent offline")
	if resp.Type != TypeError {
		t.Errorf("Type = %q, want %q", resp.Type, TypeError)
	}
	if resp.Format() != "agent offline" {
		t.Errorf("Format() = %q, want %q", resp.Format(), "agent offline")
	}
}

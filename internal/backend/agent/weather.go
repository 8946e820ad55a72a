package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/vulcanlabs/vulcan/internal/log"
)

// observation is one weather reading, already display-formatted.
// Pressure is converted from hPa to inHg and wind direction from degrees
// to a 16-point cardinal.
type observation struct {
	Temperature   string
	Condition     string
	Humidity      string
	Pressure      string
	WindSpeed     string
	WindDirection string
}

// mockObservation is returned when no API key is configured, so the
// agent works without network access in development and tests.
var mockObservation = observation{
	Temperature:   "72°F",
	Condition:     "Partly Cloudy",
	Humidity:      "65%",
	Pressure:      "30.12 inHg",
	WindSpeed:     "5.2 mph",
	WindDirection: "SW",
}

const openWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// weatherClient fetches current conditions from OpenWeather, or serves
// the fixed mock observation when unconfigured.
type weatherClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  log.Logger
}

func newWeatherClient(apiKey string, client *http.Client, logger log.Logger) *weatherClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &weatherClient{apiKey: apiKey, baseURL: openWeatherURL, client: client, logger: logger}
}

// openWeatherResponse covers the fields we read from the API payload.
type openWeatherResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
		Pressure float64 `json:"pressure"` // hPa
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"` // mph with units=imperial
		Deg   float64 `json:"deg"`
	} `json:"wind"`
}

// cardinals are the 16-point compass directions, clockwise from north.
var cardinals = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// degreesToCardinal converts a wind bearing to its compass direction.
func degreesToCardinal(deg float64) string {
	return cardinals[int(math.Round(deg/22.5))%16]
}

// current returns the current conditions for the location.
func (w *weatherClient) current(ctx context.Context, location string) (observation, error) {
	if w.apiKey == "" {
		return mockObservation, nil
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", w.apiKey)
	q.Set("units", "imperial")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return observation{}, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return observation{}, fmt.Errorf("weather request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			w.logger.Debug("closing weather response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return observation{}, fmt.Errorf("weather API returned %d", resp.StatusCode)
	}

	var payload openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return observation{}, fmt.Errorf("decode weather response: %w", err)
	}
	if len(payload.Weather) == 0 {
		return observation{}, fmt.Errorf("weather response missing conditions")
	}

	return observation{
		Temperature:   fmt.Sprintf("%.0f°F", payload.Main.Temp),
		Condition:     payload.Weather[0].Main,
		Humidity:      fmt.Sprintf("%d%%", payload.Main.Humidity),
		Pressure:      fmt.Sprintf("%.2f inHg", payload.Main.Pressure*0.02953),
		WindSpeed:     fmt.Sprintf("%.1f mph", payload.Wind.Speed),
		WindDirection: degreesToCardinal(payload.Wind.Deg),
	}, nil
}

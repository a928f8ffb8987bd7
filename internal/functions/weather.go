package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/m2tx/function_calling/internal/agent"
)

const WeatherFunctionName = "findWeather"

// WeatherAnswerTemplate phrases a findWeather result for the TemplateSynthesizer.
const WeatherAnswerTemplate = "The current weather in {{.location}} is {{.temperature}} with {{.condition}} conditions. " +
	"The humidity is {{.humidity}} and wind speed is {{.windSpeed}}."

func CreateWeatherFunctionDeclaration(fetcher agent.Fetcher) *agent.FunctionDeclaration {
	return &agent.FunctionDeclaration{
		Name:        WeatherFunctionName,
		Description: "Get the current weather in a given location",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"location": {
					Type:        "string",
					Description: "The city and state, e.g. San Francisco, CA",
				},
				"unit": {
					Type: "string",
					Enum: []any{"C", "F"},
				},
			},
			Required: []string{"location"},
		},
		ResponseSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"location":    {Type: "string"},
				"temperature": {Type: "string", Description: "Current temperature, e.g. 22°C"},
				"condition":   {Type: "string", Description: "Weather condition, e.g. Partly cloudy"},
				"humidity":    {Type: "string"},
				"windSpeed":   {Type: "string"},
				"timestamp":   {Type: "string"},
			},
			Required: []string{"location", "temperature", "condition", "humidity", "windSpeed"},
		},
		Fetcher: fetcher,
	}
}

// StaticWeather returns fixed demo readings for any location.
type StaticWeather struct {
	// Delay simulates upstream latency; it honours cancellation.
	Delay time.Duration
	now   func() time.Time
}

func NewStaticWeather() *StaticWeather {
	return &StaticWeather{now: time.Now}
}

func (w *StaticWeather) Fetch(ctx context.Context, args agent.Arguments) (map[string]any, error) {
	if w.Delay > 0 {
		timer := time.NewTimer(w.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	location, _ := args.String("location")
	temperature := "22°C"
	if args.StringOr("unit", "C") == "F" {
		temperature = "72°F"
	}

	return map[string]any{
		"location":    location,
		"temperature": temperature,
		"condition":   "Partly cloudy",
		"humidity":    "65%",
		"windSpeed":   "8 km/h",
		"timestamp":   w.now().UTC().Format(time.RFC3339),
	}, nil
}

// HTTPWeather reads current conditions from a wttr.in compatible endpoint.
type HTTPWeather struct {
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewHTTPWeather creates an HTTPWeather. A nil client gets a 15 second timeout.
func NewHTTPWeather(baseURL string, client *http.Client) *HTTPWeather {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPWeather{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC         string `json:"temp_C"`
		TempF         string `json:"temp_F"`
		Humidity      string `json:"humidity"`
		WindspeedKmph string `json:"windspeedKmph"`
		WeatherDesc   []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
}

func (w *HTTPWeather) Fetch(ctx context.Context, args agent.Arguments) (map[string]any, error) {
	location, _ := args.String("location")
	unit := args.StringOr("unit", "C")

	endpoint := fmt.Sprintf("%s/%s?format=j1", w.baseURL, url.PathEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("weather: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "function-calling-broker/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: weather request: %w", agent.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: weather service returned status %d", agent.ErrUpstream, resp.StatusCode)
	}

	var body wttrResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode weather response: %w", agent.ErrUpstream, err)
	}

	if len(body.CurrentCondition) == 0 {
		return nil, fmt.Errorf("%w: no current conditions for %q", agent.ErrUpstream, location)
	}
	current := body.CurrentCondition[0]

	temperature := current.TempC + "°C"
	if unit == "F" {
		temperature = current.TempF + "°F"
	}

	condition := ""
	if len(current.WeatherDesc) > 0 {
		condition = strings.TrimSpace(current.WeatherDesc[0].Value)
	}

	return map[string]any{
		"location":    location,
		"temperature": temperature,
		"condition":   condition,
		"humidity":    current.Humidity + "%",
		"windSpeed":   current.WindspeedKmph + " km/h",
		"timestamp":   w.now().UTC().Format(time.RFC3339),
	}, nil
}

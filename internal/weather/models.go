package weather

import (
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
	ConditionWind    Condition = "wind"
)

// LocationRecord is a geocoded place. Key is the provider-specific location
// key ("lat,lon" with four decimals for NWS) used everywhere else.
type LocationRecord struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Region    string  `json:"region,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CurrentWeather is the normalized latest observation for a location.
type CurrentWeather struct {
	Temperature     float64   `json:"temperature"`
	TemperatureUnit string    `json:"temperature_unit"`
	Humidity        int       `json:"humidity"`
	WindSpeed       float64   `json:"wind_speed"`
	WindDirection   string    `json:"wind_direction"`
	Pressure        float64   `json:"pressure"`
	Visibility      float64   `json:"visibility"`
	UVIndex         int       `json:"uv_index"`
	WeatherText     string    `json:"weather_text"`
	Condition       Condition `json:"condition"`
	Precipitation   float64   `json:"precipitation"`
	LocalTime       time.Time `json:"local_time"` // observation time
}

// DailyForecast is one day of a multi-day forecast.
// Forecast entries are expected to be ordered by Date ascending.
type DailyForecast struct {
	Date                          time.Time `json:"date"`
	MinTemperature                float64   `json:"min_temperature"`
	MaxTemperature                float64   `json:"max_temperature"`
	TemperatureUnit               string    `json:"temperature_unit"`
	DayWeatherText                string    `json:"day_weather_text"`
	DayCondition                  Condition `json:"day_condition"`
	DayPrecipitationProbability   int       `json:"day_precipitation_probability"`
	NightWeatherText              string    `json:"night_weather_text"`
	NightCondition                Condition `json:"night_condition"`
	NightPrecipitationProbability int       `json:"night_precipitation_probability"`
}

// HourlyForecast is one hour of an hourly forecast.
type HourlyForecast struct {
	Timestamp                time.Time `json:"timestamp"`
	Temperature              float64   `json:"temperature"`
	TemperatureUnit          string    `json:"temperature_unit"`
	Humidity                 int       `json:"humidity"`
	WindSpeed                float64   `json:"wind_speed"`
	WindDirection            string    `json:"wind_direction"`
	WindGust                 float64   `json:"wind_gust"`
	PrecipitationProbability int       `json:"precipitation_probability"`
	WeatherText              string    `json:"weather_text"`
	Condition                Condition `json:"condition"`
	IsDaytime                bool      `json:"is_daytime"`
}

// Alert is a single active hazard notice. ID is provider-assigned and is the
// deduplication key.
type Alert struct {
	ID          string     `json:"alert_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    string     `json:"severity"`
	Category    string     `json:"category"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Areas       []string   `json:"areas"`
}

// AlertIDs returns the ids of alerts in order.
func AlertIDs(alerts []Alert) []string {
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	return ids
}

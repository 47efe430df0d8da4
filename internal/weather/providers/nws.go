package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/common"
	"github.com/i474232898/weather-stream/internal/metrics"
	"github.com/i474232898/weather-stream/internal/weather"
)

const (
	nwsUpstream = "nws"

	// maxObservationStations is how many nearby stations are tried for a
	// usable latest observation.
	maxObservationStations = 3
)

// gridPoint is the subset of /points properties we use.
type gridPoint struct {
	Forecast            string `json:"forecast"`
	ForecastHourly      string `json:"forecastHourly"`
	ObservationStations string `json:"observationStations"`
}

// NWSProvider implements weather.Provider for the US National Weather Service.
// Geocoding is delegated to a weather.Geocoder.
type NWSProvider struct {
	name     string
	baseURL  string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	geocoder weather.Geocoder
	grid     *lru.Cache[string, gridPoint]
	logger   *zap.Logger
}

// NWSOptions configures NewNWSProvider.
type NWSOptions struct {
	BaseURL       string
	UserAgent     string
	GridCacheSize int
	Backoff       BackoffConfig
}

// NewNWSProvider builds an NWS-backed provider.
func NewNWSProvider(client *http.Client, geocoder weather.Geocoder, opts NWSOptions, logger *zap.Logger) (*NWSProvider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.weather.gov"
	}
	if opts.GridCacheSize <= 0 {
		opts.GridCacheSize = 1000
	}
	if opts.Backoff.InitialInterval == 0 {
		opts.Backoff = DefaultBackoff
	}

	grid, err := lru.New[string, gridPoint](opts.GridCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create grid cache: %w", err)
	}

	return &NWSProvider{
		name:    "nws",
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:    client,
			UserAgent: opts.UserAgent,
			Backoff:   opts.Backoff,
		},
		circuit:  newCircuitBreaker(nwsUpstream),
		geocoder: geocoder,
		grid:     grid,
		logger:   logger.Named("nws"),
	}, nil
}

func (p *NWSProvider) Name() string {
	return p.name
}

// SearchLocations delegates to the configured geocoder.
func (p *NWSProvider) SearchLocations(ctx context.Context, query, _ string) ([]weather.LocationRecord, error) {
	if p.geocoder == nil {
		return nil, fmt.Errorf("no geocoder configured")
	}
	return p.geocoder.Geocode(ctx, query)
}

func (p *NWSProvider) gridPointFor(ctx context.Context, locationKey string) (gridPoint, error) {
	lat, lon, err := weather.ParseLocationKey(locationKey)
	if err != nil {
		return gridPoint{}, err
	}
	key := weather.FormatLocationKey(lat, lon)

	if gp, ok := p.grid.Get(key); ok {
		metrics.CacheOperationsTotal.WithLabelValues("grid", "hit").Inc()
		return gp, nil
	}
	metrics.CacheOperationsTotal.WithLabelValues("grid", "miss").Inc()

	var payload struct {
		Properties *gridPoint `json:"properties"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, nwsUpstream, "points", p.baseURL+"/points/"+key, &payload); err != nil {
		return gridPoint{}, fmt.Errorf("grid point for %s: %w", key, err)
	}
	if payload.Properties == nil {
		return gridPoint{}, fmt.Errorf("%w: no grid point data for %s", weather.ErrNoData, key)
	}

	p.grid.Add(key, *payload.Properties)
	return *payload.Properties, nil
}

// quantity is an NWS "QuantitativeValue"; Value is null when unavailable.
type quantity struct {
	Value *float64 `json:"value"`
}

func (q quantity) or(def float64) float64 {
	if q.Value == nil {
		return def
	}
	return *q.Value
}

// CurrentWeather reads the latest observation from the nearest stations.
func (p *NWSProvider) CurrentWeather(ctx context.Context, locationKey string) (weather.CurrentWeather, error) {
	gp, err := p.gridPointFor(ctx, locationKey)
	if err != nil {
		return weather.CurrentWeather{}, err
	}
	if gp.ObservationStations == "" {
		return weather.CurrentWeather{}, fmt.Errorf("%w: no observation stations for %s", weather.ErrNoData, locationKey)
	}

	var stations struct {
		Features []struct {
			Properties struct {
				StationIdentifier string `json:"stationIdentifier"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, nwsUpstream, "stations", gp.ObservationStations, &stations); err != nil {
		return weather.CurrentWeather{}, fmt.Errorf("observation stations for %s: %w", locationKey, err)
	}
	if len(stations.Features) == 0 {
		return weather.CurrentWeather{}, fmt.Errorf("%w: no observation stations available", weather.ErrNoData)
	}

	for i, st := range stations.Features {
		if i >= maxObservationStations {
			break
		}
		id := st.Properties.StationIdentifier
		cw, err := p.latestObservation(ctx, id)
		if err != nil {
			p.logger.Debug("station observation unusable", zap.String("station", id), zap.Error(err))
			continue
		}
		return cw, nil
	}

	return weather.CurrentWeather{}, fmt.Errorf("%w: no current observation from any station near %s", weather.ErrNoData, locationKey)
}

func (p *NWSProvider) latestObservation(ctx context.Context, stationID string) (weather.CurrentWeather, error) {
	var obs struct {
		Properties *struct {
			Timestamp             string   `json:"timestamp"`
			TextDescription       string   `json:"textDescription"`
			Temperature           quantity `json:"temperature"`
			RelativeHumidity      quantity `json:"relativeHumidity"`
			WindSpeed             quantity `json:"windSpeed"`
			WindDirection         quantity `json:"windDirection"`
			BarometricPressure    quantity `json:"barometricPressure"`
			Visibility            quantity `json:"visibility"`
			PrecipitationLastHour quantity `json:"precipitationLastHour"`
		} `json:"properties"`
	}
	u := fmt.Sprintf("%s/stations/%s/observations/latest", p.baseURL, url.PathEscape(stationID))
	if err := getJSON(ctx, p.httpCfg, p.circuit, nwsUpstream, "observation", u, &obs); err != nil {
		return weather.CurrentWeather{}, err
	}
	props := obs.Properties
	if props == nil || props.Temperature.Value == nil {
		return weather.CurrentWeather{}, weather.ErrNoData
	}

	ts, err := time.Parse(time.RFC3339, props.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	text := props.TextDescription
	if text == "" {
		text = "Clear"
	}

	return weather.CurrentWeather{
		Temperature:     round(*props.Temperature.Value, 1),
		TemperatureUnit: "C",
		Humidity:        int(math.Round(props.RelativeHumidity.or(0))),
		WindSpeed:       round(props.WindSpeed.or(0), 1),             // km/h
		WindDirection:   degreesToCompass(props.WindDirection.Value), // compass point
		Pressure:        round(props.BarometricPressure.or(0)/100, 1), // Pa -> hPa
		Visibility:      round(props.Visibility.or(0)/1000, 1),        // m -> km
		WeatherText:     text,
		Condition:       conditionFromText(text),
		Precipitation:   round(props.PrecipitationLastHour.or(0), 2),
		LocalTime:       ts,
	}, nil
}

type forecastPeriod struct {
	StartTime                  string   `json:"startTime"`
	IsDaytime                  bool     `json:"isDaytime"`
	Temperature                float64  `json:"temperature"`
	TemperatureUnit            string   `json:"temperatureUnit"`
	ShortForecast              string   `json:"shortForecast"`
	WindSpeed                  string   `json:"windSpeed"`
	WindGust                   string   `json:"windGust"`
	WindDirection              string   `json:"windDirection"`
	ProbabilityOfPrecipitation quantity `json:"probabilityOfPrecipitation"`
	RelativeHumidity           quantity `json:"relativeHumidity"`
}

func (p *NWSProvider) forecastPeriods(ctx context.Context, endpoint, u string) ([]forecastPeriod, error) {
	var payload struct {
		Properties struct {
			Periods []forecastPeriod `json:"periods"`
		} `json:"properties"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, nwsUpstream, endpoint, u, &payload); err != nil {
		return nil, err
	}
	if len(payload.Properties.Periods) == 0 {
		return nil, fmt.Errorf("%w: no forecast periods available", weather.ErrNoData)
	}
	return payload.Properties.Periods, nil
}

// DailyForecast groups NWS day/night periods into per-day entries.
func (p *NWSProvider) DailyForecast(ctx context.Context, locationKey string, days int) ([]weather.DailyForecast, error) {
	gp, err := p.gridPointFor(ctx, locationKey)
	if err != nil {
		return nil, err
	}
	if gp.Forecast == "" {
		return nil, fmt.Errorf("%w: no forecast for %s", weather.ErrNoData, locationKey)
	}

	periods, err := p.forecastPeriods(ctx, "forecast", gp.Forecast)
	if err != nil {
		return nil, fmt.Errorf("daily forecast for %s: %w", locationKey, err)
	}

	type dayPair struct {
		date  time.Time
		day   *forecastPeriod
		night *forecastPeriod
	}
	pairs := make(map[string]*dayPair)
	for i := range periods {
		per := &periods[i]
		ts, err := time.Parse(time.RFC3339, per.StartTime)
		if err != nil {
			continue
		}
		k := ts.Format("2006-01-02")
		pair, ok := pairs[k]
		if !ok {
			pair = &dayPair{date: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)}
			pairs[k] = pair
		}
		if per.IsDaytime {
			pair.day = per
		} else {
			pair.night = per
		}
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]weather.DailyForecast, 0, days)
	for _, k := range keys {
		if len(out) >= days {
			break
		}
		pair := pairs[k]
		// Days without a daytime period (e.g. "Tonight") are skipped.
		if pair.day == nil {
			continue
		}

		dayTemp := toCelsius(pair.day.Temperature, pair.day.TemperatureUnit)
		nightTemp := dayTemp - 10/1.8
		entry := weather.DailyForecast{
			Date:                        pair.date,
			TemperatureUnit:             "C",
			DayWeatherText:              pair.day.ShortForecast,
			DayCondition:                conditionFromText(pair.day.ShortForecast),
			DayPrecipitationProbability: int(pair.day.ProbabilityOfPrecipitation.or(0)),
		}
		if pair.night != nil {
			nightTemp = toCelsius(pair.night.Temperature, pair.night.TemperatureUnit)
			entry.NightWeatherText = pair.night.ShortForecast
			entry.NightCondition = conditionFromText(pair.night.ShortForecast)
			entry.NightPrecipitationProbability = int(pair.night.ProbabilityOfPrecipitation.or(0))
		}
		entry.MinTemperature = round(math.Min(dayTemp, nightTemp), 1)
		entry.MaxTemperature = round(math.Max(dayTemp, nightTemp), 1)

		out = append(out, entry)
	}

	return out, nil
}

// HourlyForecast returns up to hours hourly periods.
func (p *NWSProvider) HourlyForecast(ctx context.Context, locationKey string, hours int) ([]weather.HourlyForecast, error) {
	gp, err := p.gridPointFor(ctx, locationKey)
	if err != nil {
		return nil, err
	}
	if gp.ForecastHourly == "" {
		return nil, fmt.Errorf("%w: no hourly forecast for %s", weather.ErrNoData, locationKey)
	}

	periods, err := p.forecastPeriods(ctx, "forecast_hourly", gp.ForecastHourly)
	if err != nil {
		return nil, fmt.Errorf("hourly forecast for %s: %w", locationKey, err)
	}
	if len(periods) > hours {
		periods = periods[:hours]
	}

	out := make([]weather.HourlyForecast, 0, len(periods))
	for _, per := range periods {
		ts, err := time.Parse(time.RFC3339, per.StartTime)
		if err != nil {
			continue
		}
		out = append(out, weather.HourlyForecast{
			Timestamp:                ts,
			Temperature:              round(toCelsius(per.Temperature, per.TemperatureUnit), 1),
			TemperatureUnit:          "C",
			Humidity:                 int(math.Round(per.RelativeHumidity.or(0))),
			WindSpeed:                round(parseMPH(per.WindSpeed)*1.60934, 1), // km/h
			WindDirection:            per.WindDirection,
			WindGust:                 round(parseMPH(per.WindGust)*1.60934, 1),
			PrecipitationProbability: int(per.ProbabilityOfPrecipitation.or(0)),
			WeatherText:              per.ShortForecast,
			Condition:                conditionFromText(per.ShortForecast),
			IsDaytime:                per.IsDaytime,
		})
	}
	return out, nil
}

// ActiveAlerts returns the actual, active alert messages covering the point.
func (p *NWSProvider) ActiveAlerts(ctx context.Context, locationKey string) ([]weather.Alert, error) {
	lat, lon, err := weather.ParseLocationKey(locationKey)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("point", weather.FormatLocationKey(lat, lon))
	values.Set("status", "actual")
	values.Set("message_type", "alert")

	var payload struct {
		Features []struct {
			Properties struct {
				ID          string  `json:"id"`
				Headline    *string `json:"headline"`
				Description string  `json:"description"`
				Severity    string  `json:"severity"`
				Category    string  `json:"category"`
				Onset       *string `json:"onset"`
				Effective   *string `json:"effective"`
				Expires     *string `json:"expires"`
				AreaDesc    string  `json:"areaDesc"`
			} `json:"properties"`
		} `json:"features"`
	}
	u := fmt.Sprintf("%s/alerts/active?%s", p.baseURL, values.Encode())
	if err := getJSON(ctx, p.httpCfg, p.circuit, nwsUpstream, "alerts", u, &payload); err != nil {
		return nil, fmt.Errorf("active alerts for %s: %w", locationKey, err)
	}

	alerts := make([]weather.Alert, 0, len(payload.Features))
	for _, f := range payload.Features {
		props := f.Properties

		title := "Weather Alert"
		if props.Headline != nil && *props.Headline != "" {
			title = *props.Headline
		}

		start := parseOptionalTime(props.Onset)
		if start == nil {
			start = parseOptionalTime(props.Effective)
		}
		if start == nil {
			now := time.Now().UTC()
			start = &now
		}

		var areas []string
		if props.AreaDesc != "" {
			for _, a := range strings.Split(props.AreaDesc, ";") {
				if a = strings.TrimSpace(a); a != "" {
					areas = append(areas, a)
				}
			}
		}

		alerts = append(alerts, weather.Alert{
			ID:          props.ID,
			Title:       title,
			Description: props.Description,
			Severity:    titleCase(props.Severity, "Unknown"),
			Category:    titleCase(props.Category, "Weather"),
			StartTime:   *start,
			EndTime:     parseOptionalTime(props.Expires),
			Areas:       areas,
		})
	}

	p.logger.Debug("retrieved alerts", zap.String("location", locationKey), zap.Int("count", len(alerts)))
	return alerts, nil
}

func parseOptionalTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &ts
}

func titleCase(s, def string) string {
	if s == "" {
		return def
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func toCelsius(v float64, unit string) float64 {
	if strings.EqualFold(unit, "F") {
		return (v - 32) * 5 / 9
	}
	return v
}

// parseMPH reads the leading number of strings like "10 mph" or "5 to 10 mph".
func parseMPH(s string) float64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

func degreesToCompass(deg *float64) string {
	if deg == nil {
		return "Unknown"
	}
	idx := int(math.Round(*deg/22.5)) % len(compassPoints)
	if idx < 0 {
		idx += len(compassPoints)
	}
	return compassPoints[idx]
}

func conditionFromText(text string) weather.Condition {
	t := strings.ToLower(text)
	switch {
	case t == "":
		return weather.ConditionUnknown
	case common.HasAny(t, "thunder", "storm"):
		return weather.ConditionStorm
	case common.HasAny(t, "snow", "sleet", "blizzard", "flurries"):
		return weather.ConditionSnow
	case common.HasAny(t, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case common.HasAny(t, "fog", "mist", "haze"):
		return weather.ConditionMist
	case common.HasAny(t, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.HasAny(t, "wind", "breezy"):
		return weather.ConditionWind
	case common.HasAny(t, "clear", "sunny", "fair"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}

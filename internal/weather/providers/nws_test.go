package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/weather"
)

const testKey = "40.7128,-74.0060"

// fakeNWS serves a minimal subset of api.weather.gov.
func fakeNWS(t *testing.T, pointsHits *int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/points/"+testKey, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(pointsHits, 1)
		assert.Equal(t, "weather-stream-test", r.Header.Get("User-Agent"))
		fmt.Fprintf(w, `{"properties":{
			"forecast":"%[1]s/gridpoints/OKX/33,35/forecast",
			"forecastHourly":"%[1]s/gridpoints/OKX/33,35/forecast/hourly",
			"observationStations":"%[1]s/gridpoints/OKX/33,35/stations"}}`, srv.URL)
	})
	mux.HandleFunc("/gridpoints/OKX/33,35/stations", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features":[
			{"properties":{"stationIdentifier":"DEAD"}},
			{"properties":{"stationIdentifier":"KNYC"}}]}`)
	})
	mux.HandleFunc("/stations/DEAD/observations/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{"temperature":{"value":null}}}`)
	})
	mux.HandleFunc("/stations/KNYC/observations/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{
			"timestamp":"2026-01-02T15:00:00+00:00",
			"textDescription":"Light Rain",
			"temperature":{"value":5.0},
			"relativeHumidity":{"value":81.4},
			"windSpeed":{"value":14.8},
			"windDirection":{"value":225},
			"barometricPressure":{"value":101320},
			"visibility":{"value":16090},
			"precipitationLastHour":{"value":null}}}`)
	})
	mux.HandleFunc("/gridpoints/OKX/33,35/forecast", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{"periods":[
			{"startTime":"2026-01-02T18:00:00-05:00","isDaytime":false,"temperature":30,"temperatureUnit":"F","shortForecast":"Snow Showers","probabilityOfPrecipitation":{"value":60}},
			{"startTime":"2026-01-03T06:00:00-05:00","isDaytime":true,"temperature":50,"temperatureUnit":"F","shortForecast":"Sunny","probabilityOfPrecipitation":{"value":null}},
			{"startTime":"2026-01-03T18:00:00-05:00","isDaytime":false,"temperature":32,"temperatureUnit":"F","shortForecast":"Partly Cloudy","probabilityOfPrecipitation":{"value":10}},
			{"startTime":"2026-01-04T06:00:00-05:00","isDaytime":true,"temperature":41,"temperatureUnit":"F","shortForecast":"Thunderstorms","probabilityOfPrecipitation":{"value":90}}
		]}}`)
	})
	mux.HandleFunc("/gridpoints/OKX/33,35/forecast/hourly", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{"periods":[
			{"startTime":"2026-01-02T15:00:00-05:00","isDaytime":true,"temperature":41,"temperatureUnit":"F","shortForecast":"Cloudy","windSpeed":"10 mph","windDirection":"SW","relativeHumidity":{"value":70},"probabilityOfPrecipitation":{"value":20}},
			{"startTime":"2026-01-02T16:00:00-05:00","isDaytime":true,"temperature":40,"temperatureUnit":"F","shortForecast":"Cloudy","windSpeed":"5 to 10 mph","windDirection":"SW","relativeHumidity":{"value":72},"probabilityOfPrecipitation":{"value":20}},
			{"startTime":"2026-01-02T17:00:00-05:00","isDaytime":false,"temperature":39,"temperatureUnit":"F","shortForecast":"Fog","windSpeed":"","windDirection":"S","relativeHumidity":{"value":90},"probabilityOfPrecipitation":{"value":30}}
		]}}`)
	})
	mux.HandleFunc("/alerts/active", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, testKey, q.Get("point"))
		assert.Equal(t, "actual", q.Get("status"))
		assert.Equal(t, "alert", q.Get("message_type"))
		fmt.Fprint(w, `{"features":[{"properties":{
			"id":"urn:oid:2.49.0.1.840.0.abc",
			"headline":"Winter Storm Warning issued",
			"description":"Heavy snow expected.",
			"severity":"SEVERE",
			"category":"met",
			"onset":"2026-01-02T18:00:00-05:00",
			"expires":"2026-01-03T18:00:00-05:00",
			"areaDesc":"New York; Kings; "}},
			{"properties":{"id":"second","headline":null,"severity":"","category":"","onset":null,"areaDesc":""}}]}`)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestNWS(t *testing.T, baseURL string, geo weather.Geocoder) *NWSProvider {
	t.Helper()
	p, err := NewNWSProvider(http.DefaultClient, geo, NWSOptions{
		BaseURL:   baseURL,
		UserAgent: "weather-stream-test",
		Backoff:   BackoffConfig{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNWSCurrentWeather(t *testing.T) {
	var hits int32
	srv := fakeNWS(t, &hits)
	p := newTestNWS(t, srv.URL, nil)

	cw, err := p.CurrentWeather(context.Background(), testKey)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cw.Temperature)
	assert.Equal(t, "C", cw.TemperatureUnit)
	assert.Equal(t, 81, cw.Humidity)
	assert.Equal(t, "SW", cw.WindDirection)
	assert.Equal(t, 1013.2, cw.Pressure)
	assert.Equal(t, 16.1, cw.Visibility)
	assert.Equal(t, weather.ConditionRain, cw.Condition)
	assert.Equal(t, 2026, cw.LocalTime.Year())

	// Grid point is cached after the first lookup.
	_, err = p.CurrentWeather(context.Background(), testKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestNWSDailyForecast(t *testing.T) {
	var hits int32
	srv := fakeNWS(t, &hits)
	p := newTestNWS(t, srv.URL, nil)

	days, err := p.DailyForecast(context.Background(), testKey, 7)
	require.NoError(t, err)
	// The leading night-only period is skipped.
	require.Len(t, days, 2)

	assert.Equal(t, "Sunny", days[0].DayWeatherText)
	assert.Equal(t, weather.ConditionClear, days[0].DayCondition)
	assert.Equal(t, weather.ConditionCloudy, days[0].NightCondition)
	assert.Equal(t, 10.0, days[0].MaxTemperature)
	assert.Equal(t, 0.0, days[0].MinTemperature)
	assert.Equal(t, 10, days[0].NightPrecipitationProbability)

	assert.Equal(t, weather.ConditionStorm, days[1].DayCondition)
	assert.Equal(t, 90, days[1].DayPrecipitationProbability)

	days, err = p.DailyForecast(context.Background(), testKey, 1)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

func TestNWSHourlyForecast(t *testing.T) {
	var hits int32
	srv := fakeNWS(t, &hits)
	p := newTestNWS(t, srv.URL, nil)

	hours, err := p.HourlyForecast(context.Background(), testKey, 2)
	require.NoError(t, err)
	require.Len(t, hours, 2)
	assert.Equal(t, 5.0, hours[0].Temperature)
	assert.Equal(t, 16.1, hours[0].WindSpeed)
	assert.Equal(t, 8.0, hours[1].WindSpeed)
	assert.Equal(t, 70, hours[0].Humidity)
	assert.Equal(t, weather.ConditionCloudy, hours[0].Condition)
}

func TestNWSActiveAlerts(t *testing.T) {
	var hits int32
	srv := fakeNWS(t, &hits)
	p := newTestNWS(t, srv.URL, nil)

	alerts, err := p.ActiveAlerts(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	first := alerts[0]
	assert.Equal(t, "urn:oid:2.49.0.1.840.0.abc", first.ID)
	assert.Equal(t, "Winter Storm Warning issued", first.Title)
	assert.Equal(t, "Severe", first.Severity)
	assert.Equal(t, "Met", first.Category)
	assert.Equal(t, []string{"New York", "Kings"}, first.Areas)
	require.NotNil(t, first.EndTime)

	second := alerts[1]
	assert.Equal(t, "Weather Alert", second.Title)
	assert.Equal(t, "Unknown", second.Severity)
	assert.Equal(t, "Weather", second.Category)
	assert.Nil(t, second.EndTime)
	assert.False(t, second.StartTime.IsZero())
}

func TestNWSNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := newTestNWS(t, srv.URL, nil)
	_, err := p.CurrentWeather(context.Background(), testKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotFound)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNWSServerErrorIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newTestNWS(t, srv.URL, nil)
	_, err := p.ActiveAlerts(context.Background(), testKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, errServerError)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestNWSRejectsBadKey(t *testing.T) {
	p := newTestNWS(t, "http://127.0.0.1:0", nil)
	_, err := p.CurrentWeather(context.Background(), "nowhere")
	assert.ErrorIs(t, err, weather.ErrInvalidArgument)
}

func TestNominatimGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "us", q.Get("countrycodes"))
		assert.Equal(t, "json", q.Get("format"))
		switch q.Get("q") {
		case "10001, USA":
			assert.Equal(t, "1", q.Get("limit"))
			fmt.Fprint(w, `[{"lat":"40.7484","lon":"-73.9967","display_name":"Manhattan, New York County, New York, 10001, United States"}]`)
		case "Springfield, USA":
			assert.Equal(t, "10", q.Get("limit"))
			fmt.Fprint(w, `[
				{"lat":"39.7990","lon":"-89.6440","display_name":"Springfield, Sangamon County, Illinois, United States"},
				{"lat":"bad","lon":"0","display_name":"Broken"},
				{"lat":"37.2090","lon":"-93.2923","display_name":"Springfield, Greene County, Missouri, United States"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(http.DefaultClient, srv.URL, "weather-stream-test")

	locs, err := g.Geocode(context.Background(), "10001")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "40.7484,-73.9967", locs[0].Key)
	assert.Equal(t, "Manhattan, New York County", locs[0].Name)

	locs, err = g.Geocode(context.Background(), "Springfield")
	require.NoError(t, err)
	assert.Len(t, locs, 2)

	locs, err = g.Geocode(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.Empty(t, locs)

	_, err = g.Geocode(context.Background(), "  ")
	assert.ErrorIs(t, err, weather.ErrInvalidArgument)
}

func TestNWSSearchDelegatesToGeocoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"lat":"42.3601","lon":"-71.0589","display_name":"Boston, Suffolk County, Massachusetts"}]`)
	}))
	defer srv.Close()

	p := newTestNWS(t, "http://unused", NewNominatimGeocoder(http.DefaultClient, srv.URL, ""))
	locs, err := p.SearchLocations(context.Background(), "Boston", "en-us")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "42.3601,-71.0589", locs[0].Key)
}

func TestGoogleGeocode(t *testing.T) {
	g := NewGoogleGeocoder("test-key")
	g.lookup = func(addr geocoder.Address) (geocoder.Location, error) {
		if addr.PostalCode == "02108" {
			return geocoder.Location{Latitude: 42.3601, Longitude: -71.0589}, nil
		}
		return geocoder.Location{}, fmt.Errorf("ZERO_RESULTS")
	}
	g.reverse = func(geocoder.Location) ([]geocoder.Address, error) {
		return []geocoder.Address{{FormattedAddress: "Boston, MA 02108, USA"}}, nil
	}

	locs, err := g.Geocode(context.Background(), "02108")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "42.3601,-71.0589", locs[0].Key)
	assert.Equal(t, "Boston, MA 02108", locs[0].Name)

	locs, err = g.Geocode(context.Background(), "Nowhere")
	require.NoError(t, err)
	assert.Empty(t, locs)

	_, err = NewGoogleGeocoder("").Geocode(context.Background(), "Boston")
	assert.Error(t, err)
}

func TestConditionFromText(t *testing.T) {
	cases := map[string]weather.Condition{
		"":                     weather.ConditionUnknown,
		"Chance Thunderstorms": weather.ConditionStorm,
		"Light Snow":           weather.ConditionSnow,
		"Rain Showers Likely":  weather.ConditionRain,
		"Patchy Fog":           weather.ConditionMist,
		"Mostly Cloudy":        weather.ConditionCloudy,
		"Breezy":               weather.ConditionWind,
		"Mostly Sunny":         weather.ConditionClear,
		"Something Unheard Of": weather.ConditionUnknown,
	}
	for text, want := range cases {
		assert.Equal(t, want, conditionFromText(text), text)
	}
}

func TestDegreesToCompass(t *testing.T) {
	deg := func(v float64) *float64 { return &v }
	assert.Equal(t, "Unknown", degreesToCompass(nil))
	assert.Equal(t, "N", degreesToCompass(deg(0)))
	assert.Equal(t, "N", degreesToCompass(deg(355)))
	assert.Equal(t, "E", degreesToCompass(deg(90)))
	assert.Equal(t, "SW", degreesToCompass(deg(225)))
	assert.True(t, strings.HasPrefix(degreesToCompass(deg(200)), "S"))
}

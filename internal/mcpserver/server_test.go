package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/i474232898/weather-stream/internal/weather"
	"github.com/i474232898/weather-stream/internal/weather/weathertest"
)

const key = "40.7506,-73.9972"

func newTestServer(t *testing.T) (*Server, *weathertest.Provider) {
	t.Helper()
	p := weathertest.New()
	p.Locations["10001"] = []weather.LocationRecord{{Key: key, Name: "New York, New York"}}
	p.SetCurrent(key, weather.CurrentWeather{Temperature: 5, WeatherText: "Cloudy"})
	p.SetAlerts(key, []weather.Alert{{ID: "A", Title: "Flood Warning"}})
	p.Daily[key] = []weather.DailyForecast{{MaxTemperature: 8}, {MaxTemperature: 9}, {MaxTemperature: 10}}

	logger := zaptest.NewLogger(t)
	return NewServer(weather.NewService(p, logger), "test", logger), p
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func call(t *testing.T, s *Server, msg string) rpcResponse {
	t.Helper()
	out := s.mcp.HandleMessage(context.Background(), json.RawMessage(msg))
	require.NotNil(t, out)
	data, err := json.Marshal(out)
	require.NoError(t, err)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func callTool(t *testing.T, s *Server, name, args string) toolResult {
	t.Helper()
	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"`+name+`","arguments":`+args+`}}`)
	require.Nil(t, resp.Error)
	var res toolResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.NotEmpty(t, res.Content)
	return res
}

func TestInitializeAndPing(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1"},"capabilities":{}}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage("1"), resp.ID)

	var init struct {
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]any `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &init))
	assert.Equal(t, "weather-stream", init.ServerInfo.Name)
	assert.Equal(t, "test", init.ServerInfo.Version)
	assert.Contains(t, init.Capabilities, "tools")

	resp = call(t, s, `{"jsonrpc":"2.0","id":"p","method":"ping"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage(`"p"`), resp.ID)
}

func TestToolsList(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	var list struct {
		Tools []struct {
			Name        string `json:"name"`
			InputSchema struct {
				Required []string `json:"required"`
			} `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))

	required := make(map[string][]string)
	for _, tool := range list.Tools {
		required[tool.Name] = tool.InputSchema.Required
	}
	assert.Len(t, required, 8)
	assert.Equal(t, []string{"zip_code"}, required["get_forecast"])
	assert.Equal(t, []string{"location_key"}, required["get_hourly_forecast"])
	assert.Equal(t, []string{"query"}, required["search_locations"])
}

func TestToolsCall(t *testing.T) {
	s, p := newTestServer(t)

	res := callTool(t, s, "get_weather", `{"zip_code":"10001"}`)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, `"weather_text":"Cloudy"`)

	res = callTool(t, s, "get_alerts", `{"zip_code":"10001"}`)
	assert.Contains(t, res.Content[0].Text, `"count":1`)

	// days falls back to its default.
	res = callTool(t, s, "get_weather_forecast", `{"location_key":"`+key+`"}`)
	require.False(t, res.IsError)
	var forecast struct {
		Forecast []json.RawMessage `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &forecast))
	assert.Len(t, forecast.Forecast, 3)

	p.FailCurrent(errors.New("nws down"))
	res = callTool(t, s, "get_current_weather", `{"location_key":"`+key+`"}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "nws down", res.Content[0].Text)
}

func TestToolsCallInvalidArguments(t *testing.T) {
	s, _ := newTestServer(t)

	cases := map[string]struct{ tool, args string }{
		"missing arg":    {"get_weather", `{}`},
		"days too large": {"get_weather_forecast", `{"location_key":"` + key + `","days":8}`},
		"bad key":        {"get_weather_alerts", `{"location_key":"somewhere"}`},
		"malformed args": {"get_weather", `"10001"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := callTool(t, s, tc.tool, tc.args)
			assert.True(t, res.IsError)
		})
	}
}

func TestUnknownToolAndMethod(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_moon_phase","arguments":{}}}`)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "get_moon_phase")

	resp = call(t, s, `{"jsonrpc":"2.0","id":2,"method":"no/such_method"}`)
	require.NotNil(t, resp.Error)
}

func TestServeOverPipes(t *testing.T) {
	s, _ := newTestServer(t)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, inR, outW)
		_ = outW.Close()
	}()

	lines := bufio.NewScanner(outR)
	roundTrip := func(msg string) rpcResponse {
		t.Helper()
		_, err := io.WriteString(inW, msg+"\n")
		require.NoError(t, err)
		require.True(t, lines.Scan(), "no response")
		var resp rpcResponse
		require.NoError(t, json.Unmarshal(lines.Bytes(), &resp))
		return resp
	}

	resp := roundTrip(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1"},"capabilities":{}}}`)
	assert.Equal(t, json.RawMessage("1"), resp.ID)
	assert.Nil(t, resp.Error)

	resp = roundTrip(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_forecast","arguments":{"zip_code":"10001","days":2}}}`)
	assert.Equal(t, json.RawMessage("2"), resp.ID)
	require.Nil(t, resp.Error)
	var res toolResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.False(t, res.IsError)

	cancel()
	_ = inW.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return")
	}
}

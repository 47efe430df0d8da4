package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/weather"
)

var validate = validator.New()

type searchArgs struct {
	Query    string `json:"query" validate:"required"`
	Language string `json:"language"`
}

type keyArgs struct {
	LocationKey string `json:"location_key" validate:"required"`
}

type dailyArgs struct {
	LocationKey string `json:"location_key" validate:"required"`
	Days        int    `json:"days" validate:"min=1,max=7"`
}

type hourlyArgs struct {
	LocationKey string `json:"location_key" validate:"required"`
	Hours       int    `json:"hours" validate:"min=1,max=168"`
}

type zipArgs struct {
	ZipCode string `json:"zip_code" validate:"required"`
}

type zipDailyArgs struct {
	ZipCode string `json:"zip_code" validate:"required"`
	Days    int    `json:"days" validate:"min=1,max=7"`
}

// handle adapts a typed tool function. Arguments start from defaults, are
// bound from the request and validated; failures come back as tool errors.
func handle[A any](logger *zap.Logger, name string, defaults A, fn func(context.Context, A) (any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := defaults
		if err := req.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if err := validate.Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		out, err := fn(ctx, args)
		if err != nil {
			logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func locationKeyParam() mcp.ToolOption {
	return mcp.WithString("location_key", mcp.Required(), mcp.Description(`Location key ("lat,lon")`))
}

func zipParam() mcp.ToolOption {
	return mcp.WithString("zip_code", mcp.Required(), mcp.Description("US ZIP code or place name"))
}

func daysParam() mcp.ToolOption {
	return mcp.WithNumber("days",
		mcp.Description("Number of days"),
		mcp.Min(1), mcp.Max(weather.MaxForecastDays), mcp.DefaultNumber(5))
}

func buildTools(svc *weather.Service, logger *zap.Logger) []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("search_locations",
				mcp.WithDescription("Search for weather locations by name or ZIP code"),
				mcp.WithString("query", mcp.Required(), mcp.Description("Place name or ZIP code")),
				mcp.WithString("language", mcp.DefaultString("en-us")),
			),
			Handler: handle(logger, "search_locations", searchArgs{}, func(ctx context.Context, a searchArgs) (any, error) {
				locs, err := svc.SearchLocations(ctx, a.Query, a.Language)
				if err != nil {
					return nil, err
				}
				return map[string]any{"locations": locs}, nil
			}),
		},
		{
			Tool: mcp.NewTool("get_current_weather",
				mcp.WithDescription("Get current weather conditions for a location"),
				locationKeyParam(),
			),
			Handler: handle(logger, "get_current_weather", keyArgs{}, func(ctx context.Context, a keyArgs) (any, error) {
				cw, err := svc.CurrentWeather(ctx, a.LocationKey)
				if err != nil {
					return nil, err
				}
				return map[string]any{"location_key": a.LocationKey, "weather": cw}, nil
			}),
		},
		{
			Tool: mcp.NewTool("get_weather_forecast",
				mcp.WithDescription("Get a daily weather forecast for a location (up to 7 days)"),
				locationKeyParam(),
				daysParam(),
			),
			Handler: handle(logger, "get_weather_forecast", dailyArgs{Days: 5}, func(ctx context.Context, a dailyArgs) (any, error) {
				forecast, err := svc.DailyForecast(ctx, a.LocationKey, a.Days)
				if err != nil {
					return nil, err
				}
				return map[string]any{"location_key": a.LocationKey, "forecast": forecast}, nil
			}),
		},
		{
			Tool: mcp.NewTool("get_hourly_forecast",
				mcp.WithDescription("Get an hourly weather forecast for a location (up to 168 hours)"),
				locationKeyParam(),
				mcp.WithNumber("hours",
					mcp.Description("Number of hours"),
					mcp.Min(1), mcp.Max(weather.MaxForecastHours), mcp.DefaultNumber(12)),
			),
			Handler: handle(logger, "get_hourly_forecast", hourlyArgs{Hours: 12}, func(ctx context.Context, a hourlyArgs) (any, error) {
				forecast, err := svc.HourlyForecast(ctx, a.LocationKey, a.Hours)
				if err != nil {
					return nil, err
				}
				return map[string]any{"location_key": a.LocationKey, "forecast": forecast}, nil
			}),
		},
		{
			Tool: mcp.NewTool("get_weather_alerts",
				mcp.WithDescription("Get active weather alerts for a location"),
				locationKeyParam(),
			),
			Handler: handle(logger, "get_weather_alerts", keyArgs{}, func(ctx context.Context, a keyArgs) (any, error) {
				alerts, err := svc.Alerts(ctx, a.LocationKey)
				if err != nil {
					return nil, err
				}
				return map[string]any{"location_key": a.LocationKey, "alerts": alerts}, nil
			}),
		},
		{
			Tool: mcp.NewTool("get_weather",
				mcp.WithDescription("Get current weather for a ZIP code"),
				zipParam(),
			),
			Handler: handle(logger, "get_weather", zipArgs{}, func(ctx context.Context, a zipArgs) (any, error) {
				loc, cw, err := svc.WeatherFor(ctx, a.ZipCode)
				if err != nil {
					return nil, err
				}
				return map[string]any{"location": loc, "weather": cw}, nil
			}),
		},
		{
			Tool: mcp.NewTool("get_forecast",
				mcp.WithDescription("Get a daily weather forecast for a ZIP code"),
				zipParam(),
				daysParam(),
			),
			Handler: handle(logger, "get_forecast", zipDailyArgs{Days: 5}, func(ctx context.Context, a zipDailyArgs) (any, error) {
				loc, forecast, err := svc.ForecastFor(ctx, a.ZipCode, a.Days)
				if err != nil {
					return nil, err
				}
				return map[string]any{"location": loc, "forecast": forecast}, nil
			}),
		},
		{
			Tool: mcp.NewTool("get_alerts",
				mcp.WithDescription("Get active weather alerts for a ZIP code"),
				zipParam(),
			),
			Handler: handle(logger, "get_alerts", zipArgs{}, func(ctx context.Context, a zipArgs) (any, error) {
				loc, alerts, err := svc.AlertsFor(ctx, a.ZipCode)
				if err != nil {
					return nil, err
				}
				return map[string]any{"location": loc, "alerts": alerts, "count": len(alerts)}, nil
			}),
		},
	}
}

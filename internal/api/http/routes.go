package httpapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-stream/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the weather tool endpoints into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		var q searchQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		locs, err := service.SearchLocations(c.UserContext(), q.Query, q.Language)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"locations": locs})
	})

	// Location-key endpoints.

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		var q keyQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		cw, err := service.CurrentWeather(c.UserContext(), q.LocationKey)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"location_key": q.LocationKey, "weather": cw})
	})

	v1.Get("/weather/forecast", func(c *fiber.Ctx) error {
		var q dailyQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		forecast, err := service.DailyForecast(c.UserContext(), q.LocationKey, q.Days)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"location_key": q.LocationKey, "forecast": forecast})
	})

	v1.Get("/weather/hourly", func(c *fiber.Ctx) error {
		var q hourlyQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		forecast, err := service.HourlyForecast(c.UserContext(), q.LocationKey, q.Hours)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"location_key": q.LocationKey, "forecast": forecast})
	})

	v1.Get("/weather/alerts", func(c *fiber.Ctx) error {
		var q keyQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		alerts, err := service.Alerts(c.UserContext(), q.LocationKey)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"location_key": q.LocationKey, "alerts": alerts})
	})

	// Query endpoints resolve a ZIP code or place name first.

	v1.Get("/weather", func(c *fiber.Ctx) error {
		var q placeQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		loc, cw, err := service.WeatherFor(c.UserContext(), q.Query)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"location": loc, "weather": cw})
	})

	v1.Get("/forecast", func(c *fiber.Ctx) error {
		var q placeDailyQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		loc, forecast, err := service.ForecastFor(c.UserContext(), q.Query, q.Days)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"location": loc, "forecast": forecast})
	})

	v1.Get("/alerts", func(c *fiber.Ctx) error {
		var q placeQuery
		if err := bindQuery(c, &q); err != nil {
			return err
		}
		loc, alerts, err := service.AlertsFor(c.UserContext(), q.Query)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"location": loc, "alerts": alerts})
	})
}

type searchQuery struct {
	Query    string `query:"query" validate:"required"`
	Language string `query:"language"`
}

type keyQuery struct {
	LocationKey string `query:"location_key" validate:"required"`
}

type dailyQuery struct {
	LocationKey string `query:"location_key" validate:"required"`
	Days        int    `query:"days" validate:"required,min=1,max=7"`
}

type hourlyQuery struct {
	LocationKey string `query:"location_key" validate:"required"`
	Hours       int    `query:"hours" validate:"required,min=1,max=168"`
}

type placeQuery struct {
	Query string `query:"query" validate:"required"`
}

type placeDailyQuery struct {
	Query string `query:"query" validate:"required"`
	Days  int    `query:"days" validate:"required,min=1,max=7"`
}

// bindQuery parses and validates query parameters into out.
func bindQuery(c *fiber.Ctx, out any) error {
	if err := c.QueryParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [query]",
		Short: "Smoke-test the upstream weather APIs for a place or ZIP code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := "New York"
			if len(args) == 1 {
				query = args[0]
			}

			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			return runCheck(ctx, d, query)
		},
	}
}

func runCheck(ctx context.Context, d *deps, query string) error {
	svc := d.service
	fmt.Printf("%s %q via %s\n", bold("Checking"), query, svc.ProviderName())

	loc, err := svc.ResolveLocation(ctx, query)
	if err != nil {
		fmt.Println(red("✗ location lookup:"), err)
		return err
	}
	fmt.Printf("%s location: %s (%s)\n", green("✓"), loc.Name, loc.Key)

	failed := 0
	step := func(name string, fn func() (string, error)) {
		summary, err := fn()
		if err != nil {
			failed++
			fmt.Printf("%s %s: %v\n", red("✗"), name, err)
			return
		}
		fmt.Printf("%s %s: %s\n", green("✓"), name, summary)
	}

	step("current weather", func() (string, error) {
		cw, err := svc.CurrentWeather(ctx, loc.Key)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%.1f°%s, %s", cw.Temperature, cw.TemperatureUnit, cw.WeatherText), nil
	})
	step("daily forecast", func() (string, error) {
		days, err := svc.DailyForecast(ctx, loc.Key, 5)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d days", len(days)), nil
	})
	step("hourly forecast", func() (string, error) {
		hours, err := svc.HourlyForecast(ctx, loc.Key, 12)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d hours", len(hours)), nil
	})
	step("alerts", func() (string, error) {
		alerts, err := svc.Alerts(ctx, loc.Key)
		if err != nil {
			return "", err
		}
		if len(alerts) == 0 {
			return "none active", nil
		}
		return yellow(fmt.Sprintf("%d active, first: %s", len(alerts), alerts[0].Title)), nil
	})

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Println(green("All checks passed"))
	return nil
}

package weather

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatLocationKey returns the canonical "lat,lon" key for a coordinate.
func FormatLocationKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

// ParseLocationKey splits a "lat,lon" key into coordinates.
func ParseLocationKey(key string) (lat, lon float64, err error) {
	parts := strings.Split(key, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: location key %q is not lat,lon", ErrInvalidArgument, key)
	}

	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid latitude in %q", ErrInvalidArgument, key)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid longitude in %q", ErrInvalidArgument, key)
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("%w: coordinates out of range in %q", ErrInvalidArgument, key)
	}
	return lat, lon, nil
}

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAny(t *testing.T) {
	assert.True(t, HasAny("Chance Rain Showers", "shower"))
	assert.True(t, HasAny("fog", "FOG"))
	assert.False(t, HasAny("Sunny", "rain", "snow"))
	assert.False(t, HasAny("Sunny"))
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"met", "fire"}, SplitCSV(" met, ,fire,"))
	assert.Nil(t, SplitCSV(""))
	assert.Nil(t, SplitCSV(" , "))
}

package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Stainless Steel ", "stainless steel"},
		{"Stainless\t Steel", "stainless steel"},
		{`"30"`, "30"},
		{"“Brushed Nickel”", "brushed nickel"},
		{"30 inches", "30"},
		{"30 in", "30"},
		{"30in.", "30"},
		{"150 lbs", "150"},
		{"150 lb.", "150"},
		{"N/A", ""},
		{"unavailable", ""},
		{"Unknown", ""},
		{"-", ""},
		{"", ""},
		// Units only strip after digits.
		{"Satin", "satin"},
		{"Cabin", "cabin"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in), "Normalize(%q)", c.in)
	}
}

func TestEqual_WhitespaceCaseQuotesUnits(t *testing.T) {
	cases := [][2]string{
		{"Stainless Steel", "stainless  steel"},
		{"30 inches", "30"},
		{`"30"`, "30 in"},
		{"150 lbs", "150"},
		{"GAS", "gas"},
	}
	for _, c := range cases {
		assert.True(t, Equal(c[0], c[1]), "Equal(%q, %q)", c[0], c[1])
	}
}

func TestEqual_NumericTolerance(t *testing.T) {
	assert.True(t, Equal("29.95", "30.0"))
	assert.True(t, Equal("30", "30.09"))
	assert.False(t, Equal("30", "30.2"))
	assert.False(t, Equal("30", "31"))
}

func TestEqual_Substring(t *testing.T) {
	assert.True(t, Equal("Whirlpool", "Whirlpool Corporation"))
	assert.True(t, Equal("freestanding range", "range"))
	assert.False(t, Equal("white", "black"))
}

func TestEqual_PlaceholdersNeverMatch(t *testing.T) {
	// Two placeholders normalize to empty and are equal-as-absent, but a
	// placeholder never equals real content.
	assert.True(t, Equal("N/A", "unknown"))
	assert.False(t, Equal("N/A", "white"))
	assert.False(t, Equal("white", "unavailable"))
}

func TestPresent(t *testing.T) {
	assert.True(t, Present("30"))
	assert.False(t, Present("  "))
	assert.False(t, Present("n/a"))
	assert.False(t, Present("Unknown"))
}

package factors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hierarchyYAML = `
Equity:
  US:
    - US Large Cap Growth
    - US Small Cap Value
  International:
    - Intl Developed
Bonds:
  - US Aggregate Bonds
`

func TestParseHierarchy(t *testing.T) {
	h, err := ParseHierarchy([]byte(hierarchyYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, h.Depth())
	assert.Equal(t, []string{
		"Intl Developed",
		"US Aggregate Bonds",
		"US Large Cap Growth",
		"US Small Cap Value",
	}, h.Factors())

	path, ok := h.Path("US Large Cap Growth")
	require.True(t, ok)
	assert.Equal(t, []string{"Equity", "US"}, path)
}

func TestHierarchy_LevelsPadded(t *testing.T) {
	h, err := ParseHierarchy([]byte(hierarchyYAML))
	require.NoError(t, err)

	levels, ok := h.Levels("US Aggregate Bonds")
	require.True(t, ok)
	// The bond leaf sits one level shallower than the equity leaves; the
	// missing level is padded with an empty string, not a zero-value group.
	assert.Equal(t, []string{"Bonds", ""}, levels)

	levels, ok = h.Levels("Intl Developed")
	require.True(t, ok)
	assert.Equal(t, []string{"Equity", "International"}, levels)
}

func TestParseHierarchy_DuplicateLeaf(t *testing.T) {
	doc := `
Equity:
  - Growth
Bonds:
  - Growth
`
	_, err := ParseHierarchy([]byte(doc))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Growth"))
}

func TestParseHierarchy_UnknownFactor(t *testing.T) {
	h, err := ParseHierarchy([]byte(hierarchyYAML))
	require.NoError(t, err)

	_, ok := h.Path("Commodities")
	assert.False(t, ok)
	_, ok = h.Levels("Commodities")
	assert.False(t, ok)
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "Level_0", LevelName(0))
	assert.Equal(t, "Level_3", LevelName(3))
}

func TestNormalizeWeights(t *testing.T) {
	rows := []Weight{
		{Ticker: "AOR", Factor: "US Equity", Value: 3},
		{Ticker: "AOR", Factor: "Bonds", Value: 1},
	}
	normalized := normalizeWeights(rows)

	assert.InDelta(t, 0.75, normalized[0].Value, 1e-12)
	assert.InDelta(t, 0.25, normalized[1].Value, 1e-12)

	_, err := NewTable(normalized)
	assert.NoError(t, err)
}

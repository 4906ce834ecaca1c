package holdings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristath/folio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader(ignore []string, proxies map[string]string) *Loader {
	return NewLoader(ignore, proxies, zerolog.Nop())
}

func TestParse_HeaderAliases(t *testing.T) {
	cases := []struct {
		name string
		csv  string
	}{
		{"standard", "Ticker,Quantity\nVTI,10\n"},
		{"broker style", "Symbol,Shares\nVTI,10\n"},
		{"short", "symbol,qty\nvti,10\n"},
		{"bom and spaces", "\uFEFFSymbol, Quantity\nVTI, 10\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loaded, err := testLoader(nil, nil).Parse(strings.NewReader(tc.csv), "ira")
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			assert.Equal(t, "VTI", loaded[0].Ticker)
			assert.Equal(t, "ira", loaded[0].Account)
			assert.Equal(t, 10.0, loaded[0].Quantity)
		})
	}
}

func TestParse_MissingQuantityColumn(t *testing.T) {
	_, err := testLoader(nil, nil).Parse(strings.NewReader("Ticker,Price\nVTI,100\n"), "ira")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantity")
}

func TestParse_AccountColumnOverridesDefault(t *testing.T) {
	csv := "Ticker,Quantity,Account\nVTI,10,brokerage\nVXUS,5,\n"
	loaded, err := testLoader(nil, nil).Parse(strings.NewReader(csv), "ira")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "brokerage", loaded[0].Account)
	assert.Equal(t, "ira", loaded[1].Account, "empty account cell falls back to the file-derived default")
}

func TestParse_IgnoreAndProxy(t *testing.T) {
	csv := "Ticker,Quantity\nVTI,10\nCASH,100\nFXAIX,3\n"
	loader := testLoader([]string{"cash"}, map[string]string{"FXAIX": "VOO"})
	loaded, err := loader.Parse(strings.NewReader(csv), "ira")
	require.NoError(t, err)

	require.Len(t, loaded, 2)
	assert.Equal(t, "VTI", loaded[0].Ticker)
	assert.Equal(t, "VOO", loaded[1].Ticker)
}

func TestParse_CurrencyFormattedValues(t *testing.T) {
	csv := "Ticker,Quantity,Current Value\nVTI,\"1,250\",\"$310,000.50\"\n"
	loaded, err := testLoader(nil, nil).Parse(strings.NewReader(csv), "ira")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 1250.0, loaded[0].Quantity)
	require.NotNil(t, loaded[0].SourceValue)
	assert.Equal(t, 310000.50, *loaded[0].SourceValue)
}

func TestConsolidate_SumsDuplicates(t *testing.T) {
	in := domain.Holdings{
		{Ticker: "VTI", Account: "ira", Quantity: 10},
		{Ticker: "VXUS", Account: "ira", Quantity: 5},
		{Ticker: "VTI", Account: "ira", Quantity: 2},
		{Ticker: "VTI", Account: "brokerage", Quantity: 7},
	}
	out := Consolidate(in)

	require.Len(t, out, 3)
	assert.Equal(t, domain.Holding{Ticker: "VTI", Account: "brokerage", Quantity: 7}, out[0])
	assert.Equal(t, 12.0, out[1].Quantity, "same (ticker, account) should be summed")
	assert.Equal(t, "VXUS", out[2].Ticker)
}

func TestLoadDir_AccountFromFileName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roth-ira.csv"), []byte("Ticker,Quantity\nVTI,10\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taxable.csv"), []byte("Ticker,Quantity\nVTI,4\nVXUS,6\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a csv"), 0o644))

	loaded, err := testLoader(nil, nil).LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"roth-ira", "taxable"}, loaded.Accounts())
	require.Len(t, loaded, 3)
}

func TestLoadDir_EmptyDirIsError(t *testing.T) {
	_, err := testLoader(nil, nil).LoadDir(t.TempDir())
	assert.Error(t, err)
}

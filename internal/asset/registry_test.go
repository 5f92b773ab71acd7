package asset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdc = "stellar:USDC:GDQOE23CFSUMSVQK4Y5JHPPYK73VYCNHZHA7ENKCV37P6SUEO6XQBKPP"

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	content := `assets:
  - id: ` + usdc + `
    significant_decimals: 7
    deposit_enabled: true
    withdraw_enabled: true
  - id: iso4217:USD
    significant_decimals: 2
  - id: stellar:native
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)

	got, err := reg.GetAsset("iso4217:USD")
	require.NoError(t, err)
	assert.Equal(t, int32(2), got.SignificantDecimals)
	assert.False(t, got.IsStellar())

	native, err := reg.GetAsset("stellar:native")
	require.NoError(t, err)
	assert.Equal(t, int32(7), native.SignificantDecimals)

	stellar := reg.ListStellarAssets()
	require.Len(t, stellar, 2)
	assert.Equal(t, usdc, stellar[0].ID)
	assert.Equal(t, "USDC", stellar[0].Code())
	assert.Len(t, reg.ListAssets(), 3)
}

func TestRegistryRejectsInvalidAssets(t *testing.T) {
	cases := []struct {
		name   string
		assets []Info
	}{
		{name: "empty id", assets: []Info{{ID: " "}}},
		{name: "unknown schema", assets: []Info{{ID: "btc:XBT"}}},
		{name: "duplicate", assets: []Info{{ID: "iso4217:USD"}, {ID: "iso4217:USD"}}},
		{name: "negative decimals", assets: []Info{{ID: "iso4217:USD", SignificantDecimals: -1}}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.assets)
			require.Error(t, err)
		})
	}
}

func TestGetAssetNotFound(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)
	_, err = reg.GetAsset("iso4217:EUR")
	require.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

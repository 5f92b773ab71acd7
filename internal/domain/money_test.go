package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfDown(t *testing.T) {
	cases := []struct {
		in    string
		scale int32
		want  string
	}{
		{in: "1.005", scale: 2, want: "1"},
		{in: "1.0051", scale: 2, want: "1.01"},
		{in: "1.004", scale: 2, want: "1"},
		{in: "2.5", scale: 0, want: "2"},
		{in: "2.51", scale: 0, want: "3"},
		{in: "-2.51", scale: 0, want: "-3"},
		{in: "-2.5", scale: 0, want: "-2"},
		{in: "10", scale: 7, want: "10"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			got := RoundHalfDown(decimal.RequireFromString(tc.in), tc.scale)
			assert.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestSumAmounts(t *testing.T) {
	total, err := SumAmounts(2, "40.00", "", "59.995", "0.005")
	require.NoError(t, err)
	assert.Equal(t, "99.99", FormatAmount(total, 2))

	_, err = SumAmounts(2, "abc")
	require.Error(t, err)
}

func TestAssetCodeAndIssuer(t *testing.T) {
	assert.Equal(t, "USDC", AssetCode("stellar:USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"))
	assert.Equal(t, "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN", AssetIssuer("stellar:USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"))
	assert.Equal(t, "native", AssetCode("stellar:native"))
	assert.Equal(t, "USD", AssetCode("iso4217:USD"))
	assert.Empty(t, AssetIssuer("iso4217:USD"))
	assert.True(t, IsStellarAsset("stellar:native"))
	assert.False(t, IsStellarAsset("iso4217:USD"))
}

func TestDecimalPlaces(t *testing.T) {
	assert.Equal(t, int32(0), DecimalPlaces("10"))
	assert.Equal(t, int32(2), DecimalPlaces("10.50"))
	assert.Equal(t, int32(7), DecimalPlaces("0.0000001"))
}

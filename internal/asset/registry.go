package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/spf13/viper"
)

var ErrAssetNotFound = errors.New("asset not found")

const defaultSignificantDecimals = 7

// Info describes one asset the anchor supports.
type Info struct {
	ID                  string `mapstructure:"id"`
	SignificantDecimals int32  `mapstructure:"significant_decimals"`
	DepositEnabled      bool   `mapstructure:"deposit_enabled"`
	WithdrawEnabled     bool   `mapstructure:"withdraw_enabled"`
	DistributionAccount string `mapstructure:"distribution_account"`
}

// IsStellar reports whether the asset lives on the ledger.
func (i Info) IsStellar() bool {
	return domain.IsStellarAsset(i.ID)
}

// Code returns the asset code part of the id.
func (i Info) Code() string {
	return domain.AssetCode(i.ID)
}

// Issuer returns the issuing account of a ledger asset.
func (i Info) Issuer() string {
	return domain.AssetIssuer(i.ID)
}

// Registry is an immutable lookup of supported assets.
type Registry struct {
	assets []Info
	byID   map[string]Info
}

// NewRegistry validates assets and builds a registry.
func NewRegistry(assets []Info) (*Registry, error) {
	r := &Registry{byID: make(map[string]Info, len(assets))}
	for _, a := range assets {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return nil, fmt.Errorf("asset id is required")
		}
		if !strings.HasPrefix(a.ID, "stellar:") && !strings.HasPrefix(a.ID, "iso4217:") {
			return nil, fmt.Errorf("asset %s: unsupported schema", a.ID)
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("asset %s: duplicate id", a.ID)
		}
		if a.SignificantDecimals < 0 {
			return nil, fmt.Errorf("asset %s: significant_decimals must be non-negative", a.ID)
		}
		if a.SignificantDecimals == 0 && a.IsStellar() {
			a.SignificantDecimals = defaultSignificantDecimals
		}
		r.assets = append(r.assets, a)
		r.byID[a.ID] = a
	}
	return r, nil
}

// Load reads the asset list from a yaml or json file under the "assets" key.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read assets file %s: %w", path, err)
	}
	var assets []Info
	if err := v.UnmarshalKey("assets", &assets); err != nil {
		return nil, fmt.Errorf("decode assets file %s: %w", path, err)
	}
	return NewRegistry(assets)
}

// GetAsset returns the asset registered under id.
func (r *Registry) GetAsset(id string) (Info, error) {
	a, ok := r.byID[id]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return a, nil
}

// ListAssets returns every registered asset in file order.
func (r *Registry) ListAssets() []Info {
	return append([]Info(nil), r.assets...)
}

// ListStellarAssets returns the ledger assets in file order.
func (r *Registry) ListStellarAssets() []Info {
	var out []Info
	for _, a := range r.assets {
		if a.IsStellar() {
			out = append(out, a)
		}
	}
	return out
}

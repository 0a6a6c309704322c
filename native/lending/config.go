package lending

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the operator-tunable lending parameters loaded from the node
// configuration file.
type Config struct {
	BaseRateBps        uint64 `toml:"BaseRateBps"`
	SlopeBeforeKinkBps uint64 `toml:"SlopeBeforeKinkBps"`
	SlopeAfterKinkBps  uint64 `toml:"SlopeAfterKinkBps"`
	KinkUtilisationBps uint64 `toml:"KinkUtilisationBps"`
	RiskFactorIndex    uint8  `toml:"RiskFactorIndex"`
	FeeTierBps         uint64 `toml:"FeeTierBps"`
}

// DefaultConfig returns a conservative rate curve: 2% base, ramping to 6% at
// an 80% kink, with a quadratic penalty beyond it.
func DefaultConfig() Config {
	return Config{
		BaseRateBps:        200,
		SlopeBeforeKinkBps: 400,
		SlopeAfterKinkBps:  6_000,
		KinkUtilisationBps: 8_000,
		RiskFactorIndex:    3,
		FeeTierBps:         30,
	}
}

// LoadConfig reads a TOML file and validates the embedded rate curve. A
// missing path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("lending config: decode %s: %w", path, err)
	}
	if err := cfg.Model().Validate(); err != nil {
		return Config{}, fmt.Errorf("lending config: %w", err)
	}
	return cfg, nil
}

// Model converts the configuration into the engine's interest model.
func (c Config) Model() InterestModel {
	return InterestModel{
		BaseRateBps:        c.BaseRateBps,
		SlopeBeforeKinkBps: c.SlopeBeforeKinkBps,
		SlopeAfterKinkBps:  c.SlopeAfterKinkBps,
		KinkUtilisationBps: c.KinkUtilisationBps,
		RiskFactorIndex:    c.RiskFactorIndex,
	}
}

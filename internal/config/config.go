package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML config at path, layers env overrides on top,
// and validates the result. Missing file is not an error: the defaults
// plus environment are a workable dry-run setup.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
			}
			if err := validateSchema(v.AllSettings()); err != nil {
				return nil, fmt.Errorf("config schema: %w", err)
			}
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides loads .env (when IMBA_ENV_FILE points at one) and
// lets a handful of operational variables override the file config:
// TESTNET, DRY_RUN, MIN_ACCOUNT_BALANCE, plus the exchange credentials.
func applyEnvOverrides(cfg *Config) {
	if envPath := os.Getenv("IMBA_ENV_FILE"); envPath != "" {
		if err := godotenv.Overload(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "env file %s not loaded: %v\n", envPath, err)
		}
	}
	if v, ok := envBool("TESTNET"); ok {
		cfg.Exchange.Testnet = v
	}
	if v, ok := envBool("DRY_RUN"); ok {
		cfg.Trading.DryRun = v
	}
	if v, ok := envFloat("MIN_ACCOUNT_BALANCE"); ok {
		cfg.Risk.MinAccountBalance = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.TelegramToken = v
	}
}

func envBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

func envFloat(name string) (float64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// EffectiveYAML renders the loaded configuration for the admin surface.
// Secret-bearing fields are excluded by their yaml tags.
func (c *Config) EffectiveYAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

package config

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Load builds the effective configuration: defaults, overlaid with the
// optional config file, overlaid with ALIGND_* environment variables
// (ALIGND_DB_HOST sets db.host). Duration fields accept Go duration
// strings ("30m") as well as nanosecond integers.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALIGND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key must be registered as a default, or viper never enumerates
	// it and environment-only overrides are silently dropped.
	defaults := map[string]interface{}{}
	settings, err := json.Marshal(DefaultConfig())
	if err != nil {
		return nil, errors.Wrap(err, "marshaling default configuration")
	}
	if err := json.Unmarshal(settings, &defaults); err != nil {
		return nil, errors.Wrap(err, "registering default configuration")
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", configPath)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, errors.Wrap(err, "applying configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating configuration")
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads config from file into the given struct, layering environment
// variables (dots replaced by underscores) on top of the struct's defaults.
// config must be a pointer.
func Load(file string, config any) error {
	v := viper.New()

	// Seed viper with the struct's zero/default values so env-only keys
	// still unmarshal.
	m := make(map[string]any)
	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %w", err)
	}
	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %w", err)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %w", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	return nil
}

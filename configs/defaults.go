package configs

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

//go:embed config.example.yaml
var exampleYAML string

const networksKey = "networks"

func readExample() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(exampleYAML)); err != nil {
		return nil, fmt.Errorf("failed to read embedded config.example.yaml: %w", err)
	}
	return v, nil
}

// ApplyDefaults registers the embedded example values as viper defaults so
// that a missing settings file still yields a complete configuration. The
// example networks are not registered: the networks map holds exactly what
// the user declared.
func ApplyDefaults(v *viper.Viper) error {
	example, err := readExample()
	if err != nil {
		return err
	}

	for _, key := range example.AllKeys() {
		if strings.HasPrefix(key, networksKey+".") {
			continue
		}
		v.SetDefault(key, example.Get(key))
	}

	return nil
}

// Decode unmarshals the settings held by v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode application settings: %w", err)
	}
	return cfg, nil
}

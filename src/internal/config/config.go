package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/wlt-go/wlt/src/internal/log"
)

// DefaultConfigPath is used when neither --config nor WLT_CONFIG is given.
const DefaultConfigPath = "/etc/wlt/config.toml"

func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		if path, err := filepath.Abs(configFile); err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %v", err)
		} else {
			configFile = path
		}
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("configuration file not found: %s", configFile)
		}
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	config, err := ParseConfig(content)
	if err != nil {
		return nil, err
	}
	config._absConfigFilePath = configFile

	log.Debugf("Configuration file path: %s", configFile)

	return config, nil
}

// ParseConfig decodes TOML content on top of DefaultConfig. Unknown keys are rejected.
// Files in the older [flask] layout are still accepted, with a warning.
func ParseConfig(content []byte) (*Config, error) {
	config := DefaultConfig()

	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		if legacy, lerr := parseLegacyConfig(content); lerr == nil {
			log.Warnf("Configuration uses the old [flask] layout with inline outlet tables. " +
				"Move [flask] host and port to [web] and list outlets as { name = ..., value = ... } entries; " +
				"self-check prints the converted file")
			return legacy, nil
		}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf("%s", derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			log.Errorf("%s", serr.String())
			return nil, fmt.Errorf("failed to parse config file: unknown keys")
		}
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	return config, nil
}

func (c *Config) SerializeConfig() (*bytes.Buffer, error) {
	buf := bytes.Buffer{}
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return &buf, nil
}

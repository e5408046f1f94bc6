package config

import (
	"os"

	"gopkg.in/yaml.v3"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

// loadAndMerge decodes a YAML file over cfg. Keys absent from the file keep
// their current values; map sections merge key by key.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return owerr.Wrap(err, owerr.ErrCodeConfigLoad, "reading config").
			WithContext("path", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return owerr.Wrap(err, owerr.ErrCodeConfigParse, "parsing YAML").
			WithContext("path", path)
	}
	return nil
}

// Marshal renders cfg as YAML, used by `overwatch config`.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, owerr.Wrap(err, owerr.ErrCodeInternal, "encoding config")
	}
	return data, nil
}

package config

import (
	"gopkg.in/yaml.v3"
)

func decodeYAML(path string, content []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, ValidationError{File: path, Message: err.Error()}
	}
	return &cfg, nil
}

/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"os"

	"gopkg.in/yaml.v2"
)

// LoadConfig reads a Client Config from a YAML file, the same
// convention jackal-family servers use for their own configuration.
// TLSConfig and Logger are not YAML-serializable and are left zero;
// callers fill them in after loading.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, Wrap(err, "parsing session config")
	}
	return cfg, nil
}

// LoadComponentConfig reads a ComponentConfig from a YAML file.
func LoadComponentConfig(path string) (ComponentConfig, error) {
	var cfg ComponentConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, Wrap(err, "parsing component config")
	}
	return cfg, nil
}

// Package config loads the panicscan.toml configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// File is the on-disk configuration.
type File struct {
	// WhitelistedFunctions lists demangled function names whose panic
	// traces are accepted.
	WhitelistedFunctions []string `toml:"whitelisted_functions"`
}

// Load reads the configuration at path. A missing file is only an error
// when the path was explicitly requested; the default config is optional.
func Load(path string, required bool) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		if required {
			return nil, fmt.Errorf("config: %w", err)
		}
		return &File{}, nil
	}
	var cf File
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cf, nil
}

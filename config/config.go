package config

import (
	"fmt"
	"os"
	"strings"
)

// Load reads, tokenizes, parses and validates the configuration file at
// filename. The filename must end in ".conf", matching the CLI contract
// in spec.md §6.
func Load(filename string) (*Config, error) {
	if !strings.HasSuffix(filename, ".conf") {
		return nil, fmt.Errorf("config: %s: configuration file must end in .conf", filename)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	p := newParser(filename, f)
	cfg, err := p.parse()
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

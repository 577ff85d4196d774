package config

import (
	"fmt"
	"strings"
)

// Validate checks cfg against the invariants from spec.md §3: every
// server has at least one location; ports are in range; location paths
// and roots don't climb above root via "..".
func Validate(cfg *Config) error {
	if len(cfg.Servers) == 0 {
		return fmt.Errorf("config: no server blocks defined")
	}

	for i, srv := range cfg.Servers {
		if err := validateServer(srv); err != nil {
			return fmt.Errorf("config: server[%d] (%s): %w", i, srv.Name, err)
		}
	}
	return nil
}

func validateServer(srv *Server) error {
	if srv.Port < 1 || srv.Port > 65535 {
		return fmt.Errorf("listen port %d out of range [1, 65535]", srv.Port)
	}
	if srv.Name == "" {
		return fmt.Errorf("missing server_name")
	}
	if srv.Root == "" {
		return fmt.Errorf("missing root")
	}
	if srv.Index == "" {
		return fmt.Errorf("missing index")
	}
	if srv.MaxSize == 0 {
		return fmt.Errorf("missing max_size")
	}
	if containsDotDot(srv.Root) {
		return fmt.Errorf("root %q must not contain '..' segments", srv.Root)
	}
	if len(srv.Locations) == 0 {
		return fmt.Errorf("must declare at least one location")
	}

	for _, loc := range srv.Locations {
		if err := validateLocation(loc); err != nil {
			return fmt.Errorf("location %q: %w", loc.Pattern, err)
		}
	}
	return nil
}

func validateLocation(loc *Location) error {
	if loc.Pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if containsDotDot(loc.Pattern) {
		return fmt.Errorf("pattern must not contain '..' segments")
	}
	if containsDotDot(loc.Root) {
		return fmt.Errorf("root %q must not contain '..' segments", loc.Root)
	}
	if loc.HasRedirect {
		if loc.RedirectCode < 300 || loc.RedirectCode > 399 {
			return fmt.Errorf("return: %d is not a redirect status code", loc.RedirectCode)
		}
	}
	return nil
}

func containsDotDot(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

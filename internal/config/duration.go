package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault parses a config duration string. Blank or zero
// values yield def; negative values are rejected. path names the field in
// errors (e.g. "client.backoff_min").
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}

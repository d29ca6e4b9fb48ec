package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cadencebot/internal/automation"
)

// parseRegion accepts "x,y,w,h" (spaces allowed).
func parseRegion(s string) (automation.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return automation.Region{}, fmt.Errorf("region %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return automation.Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	return automation.RegionFromArray(v), nil
}

// parseInterval accepts whole seconds ("600") or a Go duration of whole
// seconds ("10m", "1m30s").
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("interval %q must be > 0", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("interval %q: %w", s, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("interval %q must be at least 1s", s)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("interval %q must be whole seconds", s)
	}
	return d, nil
}

// parseDelay accepts seconds as a float ("0.5") or a Go duration ("500ms").
func parseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("delay %q must be >= 0", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("delay %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("delay %q must be >= 0", s)
	}
	return d, nil
}

// splitNames splits comma separated names and drops empties.
func splitNames(args []string) []string {
	var out []string
	for _, a := range args {
		for _, n := range strings.Split(a, ",") {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

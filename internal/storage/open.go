package storage

import (
	"errors"
	"fmt"
	"strings"

	logx "cadencebot/pkg/logx"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Open returns the store for cfg.Driver, or (nil, nil) when storage is off
// ("" or "none"). Instances then live in memory only.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

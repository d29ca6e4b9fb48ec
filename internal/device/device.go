package device

import (
	"fmt"
	"image"
	"strings"
	"time"

	logx "cadencebot/pkg/logx"
)

// Device is the full input/output surface of a display.
type Device interface {
	Name() string
	Click(x, y int) error
	TypeText(text string) error
	PressKey(key string) error
	DisplaySize() (w, h int, err error)
	CursorPosition() (x, y int, err error)
	Screenshot(x, y, w, h int) (image.Image, error)
}

// Config selects and tunes a driver.
//
// Driver values:
//   - "dryrun": logs every call and simulates a Width x Height display
//   - "robotgo": drives the real desktop (requires the robotgo build tag)
type Config struct {
	Driver string
	Width  int
	Height int
	// FailEvery makes every Nth dryrun click fail. 0 disables injection.
	FailEvery int
	// Latency is added to every dryrun call.
	Latency time.Duration
}

func Open(cfg Config, log logx.Logger) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "dryrun", "dry-run":
		return NewDryRun(cfg, log), nil
	case "robotgo":
		return openRobotgo(cfg, log)
	default:
		return nil, fmt.Errorf("unknown device driver %q", cfg.Driver)
	}
}

//go:build robotgo

package device

import (
	"errors"
	"fmt"
	"image"
	"strings"

	logx "cadencebot/pkg/logx"

	"github.com/go-vgo/robotgo"
)

type robotgoDevice struct {
	cfg Config
	log logx.Logger
}

func openRobotgo(cfg Config, log logx.Logger) (Device, error) {
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return nil, errors.New("robotgo: no display available")
	}
	log = log.With(logx.Component("device"), logx.String("driver", "robotgo"))
	log.Info("display detected", logx.Int("width", w), logx.Int("height", h))
	return &robotgoDevice{cfg: cfg, log: log}, nil
}

func (d *robotgoDevice) Name() string { return "robotgo" }

func (d *robotgoDevice) Click(x, y int) error {
	robotgo.Move(x, y)
	robotgo.Click("left", false)
	return nil
}

func (d *robotgoDevice) TypeText(text string) error {
	robotgo.TypeStr(text)
	return nil
}

func (d *robotgoDevice) PressKey(key string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "return" {
		key = "enter"
	}
	if err := robotgo.KeyTap(key); err != nil {
		return fmt.Errorf("key tap %q: %w", key, err)
	}
	return nil
}

func (d *robotgoDevice) DisplaySize() (int, int, error) {
	if d.cfg.Width > 0 && d.cfg.Height > 0 {
		return d.cfg.Width, d.cfg.Height, nil
	}
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return 0, 0, errors.New("robotgo: screen size unavailable")
	}
	return w, h, nil
}

func (d *robotgoDevice) CursorPosition() (int, int, error) {
	x, y := robotgo.Location()
	return x, y, nil
}

func (d *robotgoDevice) Screenshot(x, y, w, h int) (image.Image, error) {
	img, err := robotgo.CaptureImg(x, y, w, h)
	if err != nil {
		return nil, fmt.Errorf("capture (%d, %d, %d, %d): %w", x, y, w, h, err)
	}
	return img, nil
}

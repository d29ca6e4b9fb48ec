package device

import (
	"errors"
	"image"
	"sync"
	"time"

	logx "cadencebot/pkg/logx"
)

var ErrInjected = errors.New("dryrun: injected failure")

// DryRun logs interactions instead of performing them.
type DryRun struct {
	cfg Config
	log logx.Logger

	mu     sync.Mutex
	clicks int
	frame  uint8
	x, y   int
	typed  []string
}

func NewDryRun(cfg Config, log logx.Logger) *DryRun {
	if cfg.Width <= 0 {
		cfg.Width = 1920
	}
	if cfg.Height <= 0 {
		cfg.Height = 1080
	}
	return &DryRun{cfg: cfg, log: log.With(logx.Component("device"), logx.String("driver", "dryrun"))}
}

func (d *DryRun) Name() string { return "dryrun" }

func (d *DryRun) delay() {
	if d.cfg.Latency > 0 {
		time.Sleep(d.cfg.Latency)
	}
}

func (d *DryRun) Click(x, y int) error {
	d.delay()
	d.mu.Lock()
	d.clicks++
	n := d.clicks
	d.x, d.y = x, y
	d.mu.Unlock()

	if d.cfg.FailEvery > 0 && n%d.cfg.FailEvery == 0 {
		d.log.Debug("click failed", logx.Int("x", x), logx.Int("y", y), logx.Int("n", n))
		return ErrInjected
	}
	d.log.Debug("click", logx.Int("x", x), logx.Int("y", y))
	return nil
}

func (d *DryRun) TypeText(text string) error {
	d.delay()
	d.mu.Lock()
	d.typed = append(d.typed, text)
	d.frame++
	d.mu.Unlock()
	d.log.Debug("type", logx.String("text", text))
	return nil
}

func (d *DryRun) PressKey(key string) error {
	d.delay()
	d.log.Debug("key", logx.String("key", key))
	return nil
}

func (d *DryRun) DisplaySize() (int, int, error) { return d.cfg.Width, d.cfg.Height, nil }

func (d *DryRun) CursorPosition() (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y, nil
}

// Screenshot returns a uniform image whose shade changes after every TypeText.
func (d *DryRun) Screenshot(x, y, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.New("dryrun: empty capture region")
	}
	d.mu.Lock()
	shade := d.frame
	d.mu.Unlock()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	return img, nil
}

// Typed returns everything typed so far.
func (d *DryRun) Typed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.typed...)
}

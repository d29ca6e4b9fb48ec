package device

import (
	"context"
	"hash/fnv"
	"image"
	"sync"

	"cadencebot/internal/automation"
)

// ChangeVerifier reports an action as landed when the instance's region looks
// different from the previous capture. The first capture of a region always
// counts as landed.
type ChangeVerifier struct {
	dev Device

	mu   sync.Mutex
	last map[string]uint64
}

func NewChangeVerifier(dev Device) *ChangeVerifier {
	return &ChangeVerifier{dev: dev, last: make(map[string]uint64)}
}

func (v *ChangeVerifier) Verify(ctx context.Context, inst automation.Instance, payload string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r := inst.Region
	img, err := v.dev.Screenshot(r.X, r.Y, r.W, r.H)
	if err != nil {
		return false, err
	}
	sum := imageHash(img)

	v.mu.Lock()
	defer v.mu.Unlock()
	prev, seen := v.last[inst.Name]
	v.last[inst.Name] = sum
	return !seen || prev != sum, nil
}

func imageHash(img image.Image) uint64 {
	h := fnv.New64a()
	b := img.Bounds()
	var buf [8]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			buf[0], buf[1] = byte(r>>8), byte(r)
			buf[2], buf[3] = byte(g>>8), byte(g)
			buf[4], buf[5] = byte(bl>>8), byte(bl)
			buf[6], buf[7] = byte(a>>8), byte(a)
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}

package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultFeedSize = 500

// Feed is an in-memory, bounded log feed for display surfaces.
//
// Lines are rendered as "[timestamp] message key=value". The feed is never
// truncated by logging itself; only Clear() drops history.
type Feed struct {
	mu       sync.Mutex
	lines    []string
	size     int
	minLevel zerolog.Level
	limiter  *rate.Limiter
	dropped  uint64
}

func newFeed(cfg FeedConfig) *Feed {
	f := &Feed{}
	f.configure(cfg)
	return f
}

// NewFeed returns a standalone feed (useful for tests and CLI previews).
func NewFeed(cfg FeedConfig) *Feed { return newFeed(cfg) }

func (f *Feed) configure(cfg FeedConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size := cfg.Size
	if size <= 0 {
		size = defaultFeedSize
	}
	f.size = size
	if len(f.lines) > size {
		f.lines = append([]string(nil), f.lines[len(f.lines)-size:]...)
	}
	f.minLevel = parseLevel(cfg.MinLevel, zerolog.InfoLevel)
	if cfg.RatePerSec > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	} else {
		f.limiter = nil
	}
}

func (f *Feed) Write(p []byte) (int, error) {
	return f.WriteLevel(zerolog.InfoLevel, p)
}

func (f *Feed) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if level < f.minLevel {
		return len(p), nil
	}
	if f.limiter != nil && !f.limiter.Allow() {
		f.dropped++
		return len(p), nil
	}
	line := formatFeedLine(p)
	if line == "" {
		return len(p), nil
	}
	f.lines = append(f.lines, line)
	if len(f.lines) > f.size {
		// Shift instead of reslicing forever so the backing array does not grow unbounded.
		copy(f.lines, f.lines[len(f.lines)-f.size:])
		f.lines = f.lines[:f.size]
	}
	return len(p), nil
}

// Lines returns a copy of the current feed, oldest first.
func (f *Feed) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// Dropped reports how many lines the rate limiter rejected.
func (f *Feed) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Clear drops the feed history.
func (f *Feed) Clear() {
	f.mu.Lock()
	f.lines = nil
	f.mu.Unlock()
}

func formatFeedLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(bytesTrimSpace(p), &m); err != nil {
		return strings.TrimSpace(string(p))
	}

	msg, _ := m[zerolog.MessageFieldName].(string)

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(lineTimestamp(m[zerolog.TimestampFieldName]))
	b.WriteString("] ")
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 300))
	}
	return b.String()
}

func bytesTrimSpace(b []byte) []byte {
	i := 0
	j := len(b)
	for i < j && (b[i] == ' ' || b[i] == '\n' || b[i] == '\r' || b[i] == '\t') {
		i++
	}
	for j > i && (b[j-1] == ' ' || b[j-1] == '\n' || b[j-1] == '\r' || b[j-1] == '\t') {
		j--
	}
	return b[i:j]
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "cadencebot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drivers(t *testing.T) map[string]Config {
	dir := t.TempDir()
	return map[string]Config{
		"file":   {Driver: "file", Path: filepath.Join(dir, "instances.json")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(dir, "cadencebot.db"), BusyTimeout: time.Second},
	}
}

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "redis"}, logx.Nop())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestInstancesRoundTrip(t *testing.T) {
	ctx := context.Background()
	want := []InstanceRecord{
		{Name: "A", Region: [4]int{0, 0, 100, 100}, IntervalA: 10, IntervalB: 20},
		{Name: "b-2", Region: [4]int{1920, 40, 640, 480}, IntervalA: 3600, IntervalB: 180},
	}

	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)

			got, err := st.LoadInstances(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, st.SaveInstances(ctx, want))
			require.NoError(t, st.Close())

			st, err = Open(cfg, logx.Nop())
			require.NoError(t, err)
			defer st.Close()

			got, err = st.LoadInstances(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			// Wholesale rewrite drops instances that are gone.
			require.NoError(t, st.SaveInstances(ctx, want[1:]))
			got, err = st.LoadInstances(ctx)
			require.NoError(t, err)
			assert.Equal(t, want[1:], got)
		})
	}
}

func TestActionHistory(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			defer st.Close()

			for i, ok := range []bool{true, false, true} {
				rec := ActionRecord{
					ID:       string(rune('a' + i)),
					At:       time.Now(),
					Instance: "A",
					Cadence:  "w",
					Payload:  "$w",
					Attempts: i + 1,
					OK:       ok,
				}
				if !ok {
					rec.Error = "device busy"
				}
				require.NoError(t, st.AppendAction(ctx, rec))
			}

			got, err := st.RecentActions(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "b", got[0].ID)
			assert.Equal(t, "device busy", got[0].Error)
			assert.False(t, got[0].OK)
			assert.Equal(t, "c", got[1].ID)
			assert.Equal(t, 3, got[1].Attempts)
		})
	}
}

func TestFileStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.SaveInstances(context.Background(), []InstanceRecord{
		{Name: "A", Region: [4]int{0, 0, 100, 100}, IntervalA: 10, IntervalB: 20},
	}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":{"name":"A","region":[0,0,100,100],"cadence_a_interval":10,"cadence_b_interval":20}}`, string(b))
}

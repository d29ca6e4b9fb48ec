package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cadencebot/internal/app"
	"cadencebot/internal/automation"
	logx "cadencebot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `logging:
  level: error
storage:
  driver: file
  path: ` + filepath.ToSlash(filepath.Join(dir, "instances.json")) + `
device:
  driver: dryrun
  width: 800
  height: 600
automation:
  command_delay: 0s
  retry_backoff: 1ms
  min_sleep: 1ms
  max_sleep: 20ms
  pause_poll: 5ms
  jitter_min: 1ms
  jitter_max: 2ms
  stop_timeout: 500ms
status:
  every: "off"
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, cfg, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddListRemove(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, cfg, "", "add", "A", "--region", "100,200,50,40", "--a", "600", "--b", "1h")
	require.NoError(t, err)
	assert.Equal(t, "Added A at (100, 200, 50, 40) (w every 10m0s, rolls every 1h0m0s)\n", out)

	_, err = execute(t, cfg, "", "add", "A", "--region", "0,0,10,10", "--a", "1", "--b", "1")
	assert.ErrorIs(t, err, automation.ErrDuplicateName)

	out, err = execute(t, cfg, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "A: Stopped | w: 0s | rolls: 0s  region=(100, 200, 50, 40)\n", out)

	out, err = execute(t, cfg, "", "rm", "A")
	require.NoError(t, err)
	assert.Equal(t, "Removed A\n", out)

	out, err = execute(t, cfg, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "No instances\n", out)

	_, err = execute(t, cfg, "", "rm", "A")
	assert.ErrorIs(t, err, automation.ErrNotFound)
}

func TestAddRejectsBadInput(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "", "add", "far", "--region", "900,0,10,10", "--a", "10", "--b", "20")
	assert.ErrorIs(t, err, automation.ErrInvalidRegion)

	_, err = execute(t, cfg, "", "add", "bad", "--region", "1,2,3", "--a", "10", "--b", "20")
	assert.ErrorContains(t, err, "x,y,w,h")

	_, err = execute(t, cfg, "", "add", "bad", "--region", "1,2,3,4", "--a", "0", "--b", "20")
	assert.ErrorContains(t, err, "must be > 0")

	_, err = execute(t, cfg, "", "add", "bad", "--region", "1,2,3,4")
	assert.ErrorContains(t, err, "required flag")
}

func TestProbeAndScreen(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "", "add", "A", "--region", "0,0,100,100", "--a", "10", "--b", "20")
	require.NoError(t, err)

	out, err := execute(t, cfg, "", "probe", "A")
	require.NoError(t, err)
	assert.Equal(t, "Sent \"$test\" to A\n", out)

	out, err = execute(t, cfg, "", "list", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "probe")
	assert.Contains(t, out, "$test")
	assert.Contains(t, out, "attempts=1 ok")

	out, err = execute(t, cfg, "", "screen")
	require.NoError(t, err)
	assert.Equal(t, "driver: dryrun\ndisplay: 800x600\ncursor: 0,0\n", out)
}

func TestResetConfirmation(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "", "add", "A", "--region", "0,0,100,100", "--a", "10", "--b", "20")
	require.NoError(t, err)

	out, err := execute(t, cfg, "n\n", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Canceled")

	out, err = execute(t, cfg, "", "reset", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 instance(s)")

	out, err = execute(t, cfg, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "No instances\n", out)
}

func TestRunWithConsole(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "", "add", "A", "--region", "0,0,100,100", "--a", "3600", "--b", "3600")
	require.NoError(t, err)

	out, err := execute(t, cfg, "set retries 5\nbogus\nquit\n", "run", "--start", "A", "--console")
	require.NoError(t, err)
	assert.Contains(t, out, "retries=5")
	assert.Contains(t, out, `error: unknown command "bogus"`)

	// quit may arrive before A's first cycle, so only the state is checked.
	out, err = execute(t, cfg, "", "list")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "A: Stopped"))
}

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer, *app.App) {
	t.Helper()
	a, err := app.NewApp(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	var out bytes.Buffer
	return NewConsole(a.Supervisor(), &out), &out, a
}

func TestConsoleCommands(t *testing.T) {
	c, out, a := newTestConsole(t)
	ctx := context.Background()
	sup := a.Supervisor()

	require.NoError(t, c.Exec(ctx, "status"))
	assert.Equal(t, "no instances\n", out.String())

	require.NoError(t, c.Exec(ctx, "add A 0,0,100,100 3600 2h"))
	require.NoError(t, c.Exec(ctx, "add B 200,200,100,100 3600 3600"))
	assert.ErrorIs(t, c.Exec(ctx, "add C 900,0,10,10 10 10"), automation.ErrInvalidRegion)

	require.NoError(t, c.Exec(ctx, "start all"))
	require.NoError(t, c.Exec(ctx, "pause A"))
	inst, err := sup.Registry().Get("A")
	require.NoError(t, err)
	assert.Equal(t, automation.Paused, inst.State)

	require.NoError(t, c.Exec(ctx, "stop A,B"))
	for _, st := range sup.Status() {
		assert.Equal(t, automation.Stopped, st.State)
	}

	out.Reset()
	require.NoError(t, c.Exec(ctx, "set delay 0.25"))
	assert.Equal(t, 250*time.Millisecond, sup.Settings().Load().CommandDelay)
	require.NoError(t, c.Exec(ctx, "set key tab"))
	assert.Equal(t, "tab", sup.Settings().Load().CommitKey)
	assert.Error(t, c.Exec(ctx, "set retries 0"))
	assert.Equal(t, 3, sup.Settings().Load().RetryAttempts)

	assert.ErrorContains(t, c.Exec(ctx, "start"), "usage: start")
	assert.NoError(t, c.Exec(ctx, "   "))
	assert.NoError(t, c.Exec(ctx, "# comment"))

	require.NoError(t, c.Exec(ctx, "rm B"))
	assert.Equal(t, []string{"A"}, sup.Registry().Names())
}

func TestConsoleRunStopsOnQuit(t *testing.T) {
	c, out, _ := newTestConsole(t)
	err := c.Run(context.Background(), strings.NewReader("help\nquit\nstatus\n"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "pause <name|all>")
	assert.NotContains(t, out.String(), "no instances")
}

func TestParseHelpers(t *testing.T) {
	r, err := parseRegion(" 1, 2 ,3,4")
	require.NoError(t, err)
	assert.Equal(t, automation.Region{X: 1, Y: 2, W: 3, H: 4}, r)

	cases := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{in: "600", want: 10 * time.Minute},
		{in: "90s", want: 90 * time.Second},
		{in: "1h", want: time.Hour},
		{in: "-5", err: true},
		{in: "500ms", err: true},
		{in: "1m30s", want: 90 * time.Second},
		{in: "1.5s", err: true},
		{in: "1500ms", err: true},
		{in: "soon", err: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseInterval(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	d, err := parseDelay("500ms")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)
	_, err = parseDelay("-1")
	assert.Error(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, splitNames([]string{"A,B", " ", "C"}))
}

func TestConsoleLogs(t *testing.T) {
	c, out, _ := newTestConsole(t)
	ctx := context.Background()

	assert.ErrorContains(t, c.Exec(ctx, "logs"), "not available")

	feed := logx.NewFeed(logx.FeedConfig{Enabled: true, Size: 10})
	log := logx.NewWriter(feed, "info")
	log.Info("instance started", logx.String("instance", "A"))
	c.WithFeed(feed)

	require.NoError(t, c.Exec(ctx, "logs"))
	assert.Contains(t, out.String(), "instance started")
	assert.Contains(t, out.String(), "instance=A")

	require.NoError(t, c.Exec(ctx, "logs clear"))
	assert.Empty(t, feed.Lines())
}

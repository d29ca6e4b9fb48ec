package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"cadencebot/internal/app"
	"cadencebot/internal/automation"
	logx "cadencebot/pkg/logx"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

type consoleCmd struct {
	usage string
	desc  string
	min   int
	run   func(ctx context.Context, args []string) error
}

// Console is the line-oriented control surface of a running bot. Each line is
// one command, e.g. "start A", "pause all", "set retries 5".
type Console struct {
	sup  *automation.Supervisor
	feed *logx.Feed
	out  io.Writer
	cmds map[string]consoleCmd
}

func NewConsole(sup *automation.Supervisor, out io.Writer) *Console {
	c := &Console{sup: sup, out: out}
	c.cmds = map[string]consoleCmd{
		"status": {usage: "status", desc: "show every instance", run: c.status},
		"start":  {usage: "start <name|all>", desc: "start or resume", min: 1, run: c.each(sup.Start, sup.StartAll)},
		"pause":  {usage: "pause <name|all>", desc: "toggle pause", min: 1, run: c.each(sup.Pause, sup.PauseAll)},
		"stop":   {usage: "stop <name|all>", desc: "stop", min: 1, run: c.each(sup.Stop, sup.StopAll)},
		"add":    {usage: "add <name> <x,y,w,h> <a> <b>", desc: "add a stopped instance", min: 4, run: c.add},
		"rm":     {usage: "rm <name>", desc: "stop and delete", min: 1, run: c.rm},
		"probe":  {usage: "probe <name> [payload]", desc: "send one test action", min: 1, run: c.probe},
		"set":    {usage: "set <retries|delay|backoff|key> <value>", desc: "change action settings", min: 2, run: c.set},
		"logs":   {usage: "logs [clear]", desc: "show or clear the log feed", run: c.logs},
		"help":   {usage: "help", desc: "list commands", run: c.help},
		"quit":   {usage: "quit", desc: "stop everything and exit", run: func(context.Context, []string) error { return errQuit }},
	}
	return c
}

// WithFeed lets the logs command show f.
func (c *Console) WithFeed(f *logx.Feed) *Console {
	c.feed = f
	return c
}

// Run reads commands from r until EOF, quit or ctx is done. It returns nil on
// quit and EOF. Command errors are printed and do not end the loop.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			err := c.Exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

// Exec runs one command line. Blank lines and "#" comments are ignored.
func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	cmd, ok := c.cmds[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	if len(args) < cmd.min {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(ctx, args)
}

func (c *Console) each(one func(string) error, all func() error) func(context.Context, []string) error {
	return func(_ context.Context, args []string) error {
		names := splitNames(args)
		if len(names) == 1 && strings.EqualFold(names[0], "all") {
			return all()
		}
		var errs []error
		for _, n := range names {
			errs = append(errs, one(n))
		}
		return errors.Join(errs...)
	}
}

func (c *Console) status(context.Context, []string) error {
	lines := app.StatusLines(c.sup)
	if len(lines) == 0 {
		fmt.Fprintln(c.out, "no instances")
		return nil
	}
	for _, l := range lines {
		fmt.Fprintln(c.out, l)
	}
	return nil
}

func (c *Console) add(ctx context.Context, args []string) error {
	region, err := parseRegion(args[1])
	if err != nil {
		return err
	}
	var intervals [automation.NumCadences]time.Duration
	for i := range intervals {
		if intervals[i], err = parseInterval(args[2+i]); err != nil {
			return err
		}
	}
	inst, err := c.sup.AddInstance(ctx, args[0], region, intervals)
	if err != nil && !errors.Is(err, automation.ErrPersistence) {
		return err
	}
	fmt.Fprintf(c.out, "added %s at %s\n", inst.Name, inst.Region)
	return err
}

func (c *Console) rm(ctx context.Context, args []string) error {
	if err := c.sup.RemoveInstance(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed %s\n", args[0])
	return nil
}

func (c *Console) probe(ctx context.Context, args []string) error {
	payload := defaultProbePayload
	if len(args) > 1 {
		payload = strings.Join(args[1:], " ")
	}
	if err := c.sup.Probe(ctx, args[0], payload); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "sent %q to %s\n", payload, args[0])
	return nil
}

func (c *Console) set(_ context.Context, args []string) error {
	store := c.sup.Settings()
	s := store.Load()
	val := args[1]
	switch strings.ToLower(args[0]) {
	case "retries":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("retries %q: %w", val, err)
		}
		s.RetryAttempts = n
	case "delay":
		d, err := parseDelay(val)
		if err != nil {
			return err
		}
		s.CommandDelay = d
	case "backoff":
		d, err := parseDelay(val)
		if err != nil {
			return err
		}
		s.RetryBackoff = d
	case "key":
		s.CommitKey = val
	default:
		return fmt.Errorf("unknown setting %q", args[0])
	}
	if err := store.Update(s); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "retries=%d delay=%s backoff=%s key=%s\n", s.RetryAttempts, s.CommandDelay, s.RetryBackoff, s.CommitKey)
	return nil
}

func (c *Console) logs(_ context.Context, args []string) error {
	if c.feed == nil {
		return errors.New("log feed not available")
	}
	if len(args) > 0 && strings.EqualFold(args[0], "clear") {
		c.feed.Clear()
		return nil
	}
	lines := c.feed.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(c.out, "log feed is empty (enable logging.feed)")
	}
	for _, l := range lines {
		fmt.Fprintln(c.out, l)
	}
	return nil
}

func (c *Console) help(context.Context, []string) error {
	names := make([]string, 0, len(c.cmds))
	for n := range c.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(c.out, "  %-40s %s\n", c.cmds[n].usage, c.cmds[n].desc)
	}
	return nil
}

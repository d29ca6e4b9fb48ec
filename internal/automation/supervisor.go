package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cadencebot/internal/eventbus"
	"cadencebot/internal/storage"
	logx "cadencebot/pkg/logx"
)

// InstanceStore persists the instance set wholesale.
type InstanceStore interface {
	LoadInstances(ctx context.Context) ([]storage.InstanceRecord, error)
	SaveInstances(ctx context.Context, recs []storage.InstanceRecord) error
}

// Config are the supervisor's static parameters.
type Config struct {
	Timing   Timing
	Cadences [NumCadences]CadenceSpec
}

// Supervisor owns the lifecycle of scheduling units: at most one per
// instance, and only for instances that are Running or Paused.
type Supervisor struct {
	reg      *Registry
	exec     *Executor
	settings *SettingsStore
	timing   Timing
	cadences [NumCadences]CadenceSpec
	store    InstanceStore
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	mu    sync.Mutex
	units map[string]*unit
}

type Option func(*Supervisor)

func WithStore(st InstanceStore) Option { return func(s *Supervisor) { s.store = st } }

func WithEvents(b eventbus.Bus) Option { return func(s *Supervisor) { s.bus = b } }

func withClock(now func() time.Time) Option { return func(s *Supervisor) { s.now = now } }

func NewSupervisor(cfg Config, reg *Registry, exec *Executor, settings *SettingsStore, log logx.Logger, opts ...Option) *Supervisor {
	if reg == nil {
		reg = NewRegistry()
	}
	if settings == nil {
		settings = NewSettingsStore(DefaultSettings())
	}
	cads := cfg.Cadences
	def := DefaultCadences()
	for i := range cads {
		if cads[i].Name == "" {
			cads[i].Name = def[i].Name
		}
		if cads[i].Payload == "" {
			cads[i].Payload = def[i].Payload
		}
	}
	s := &Supervisor{
		reg:      reg,
		exec:     exec,
		settings: settings,
		timing:   cfg.Timing.withDefaults(),
		cadences: cads,
		log:      log.With(logx.Component("supervisor")),
		now:      time.Now,
		units:    make(map[string]*unit),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Registry() *Registry { return s.reg }

func (s *Supervisor) Settings() *SettingsStore { return s.settings }

func (s *Supervisor) Cadences() [NumCadences]CadenceSpec { return s.cadences }

// Bounds reports the display bounds used for region validation.
func (s *Supervisor) Bounds(ctx context.Context) (Bounds, error) { return s.exec.Bounds(ctx) }

// Start runs a Stopped instance, resumes a Paused one, and leaves a Running
// one alone.
func (s *Supervisor) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.reg.Get(name)
	if err != nil {
		return err
	}
	switch inst.State {
	case Running:
		return nil
	case Paused:
		s.setState(name, Running)
		if u := s.units[name]; u != nil {
			u.poke()
		}
		s.log.Info("instance resumed", logx.String("instance", name))
		return nil
	}

	if u := s.units[name]; u != nil && !u.stopped() {
		// A unit that outlived its stop timeout is still draining.
		u.cancel()
	}
	s.setState(name, Running)
	ctx, cancel := context.WithCancel(context.Background())
	u := newUnit(name, cancel)
	s.units[name] = u
	go s.runUnit(ctx, u)
	s.log.Info("instance started", logx.String("instance", name))
	return nil
}

// Pause toggles Running and Paused. Stopped instances are left alone.
func (s *Supervisor) Pause(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.reg.Get(name)
	if err != nil {
		return err
	}
	switch inst.State {
	case Running:
		s.setState(name, Paused)
		s.log.Info("instance paused", logx.String("instance", name))
	case Paused:
		s.setState(name, Running)
		s.log.Info("instance resumed", logx.String("instance", name))
	default:
		return nil
	}
	if u := s.units[name]; u != nil {
		u.poke()
	}
	return nil
}

// Stop marks the instance Stopped, cancels its unit and waits up to
// Timing.StopTimeout for it to exit. A timeout is logged and reported with
// ErrGracefulStopTimeout; the instance stays Stopped.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	inst, err := s.reg.Get(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	u := s.units[name]
	delete(s.units, name)
	if inst.State != Stopped {
		s.setState(name, Stopped)
	}
	s.mu.Unlock()

	if u == nil {
		return nil
	}
	u.cancel()

	tmr := time.NewTimer(s.timing.StopTimeout)
	defer tmr.Stop()
	select {
	case <-u.done:
		if inst.State != Stopped {
			s.log.Info("instance stopped", logx.String("instance", name))
		}
		return nil
	case <-tmr.C:
		s.log.Warn("scheduling unit did not stop in time",
			logx.String("instance", name),
			logx.Duration("timeout", s.timing.StopTimeout),
		)
		return fmt.Errorf("%w: %q", ErrGracefulStopTimeout, name)
	}
}

func (s *Supervisor) StartAll() error {
	var errs []error
	for _, name := range s.reg.Names() {
		if err := s.Start(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PauseAll toggles every instance that is Running or Paused.
func (s *Supervisor) PauseAll() error {
	var errs []error
	for _, inst := range s.reg.List() {
		if !inst.State.Active() {
			continue
		}
		if err := s.Pause(inst.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) StopAll() error {
	names := s.reg.Names()
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Stop(name)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Shutdown stops every unit. Used on process exit.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.StopAll() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns every instance's state and per-cadence remaining time,
// sorted by name.
func (s *Supervisor) Status() []InstanceStatus {
	now := s.now()
	list := s.reg.List()
	out := make([]InstanceStatus, 0, len(list))
	for _, inst := range list {
		st := InstanceStatus{Name: inst.Name, State: inst.State, Region: inst.Region}
		for i, c := range inst.Cadences {
			st.Remaining[i] = c.Remaining(now)
		}
		out = append(out, st)
	}
	return out
}

// Units is the number of live scheduling units.
func (s *Supervisor) Units() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.units {
		if !u.stopped() {
			n++
		}
	}
	return n
}

// AddInstance validates and registers a new Stopped instance, then persists
// the instance set. A persistence failure is returned but the instance stays
// registered.
func (s *Supervisor) AddInstance(ctx context.Context, name string, region Region, intervals [NumCadences]time.Duration) (Instance, error) {
	if err := s.exec.ValidateRegion(ctx, region); err != nil {
		return Instance{}, err
	}
	inst, err := s.reg.Add(name, region, intervals)
	if err != nil {
		return Instance{}, err
	}
	s.log.Info("instance added",
		logx.String("instance", inst.Name),
		logx.String("region", region.String()),
		logx.Duration("interval_a", intervals[CadenceA]),
		logx.Duration("interval_b", intervals[CadenceB]),
	)
	return inst, s.persist(ctx)
}

// RemoveInstance stops the instance if needed and deletes it.
func (s *Supervisor) RemoveInstance(ctx context.Context, name string) error {
	if err := s.Stop(name); err != nil && !errors.Is(err, ErrGracefulStopTimeout) {
		return err
	}
	if err := s.reg.Remove(name); err != nil {
		return err
	}
	s.log.Info("instance removed", logx.String("instance", name))
	return s.persist(ctx)
}

// ResetAll stops and removes every instance.
func (s *Supervisor) ResetAll(ctx context.Context) error {
	_ = s.StopAll()
	for _, name := range s.reg.Reset() {
		s.log.Warn("reset: instance still active, kept", logx.String("instance", name))
	}
	s.log.Info("all instances reset")
	return s.persist(ctx)
}

// Load registers every persisted instance as Stopped. Invalid records are
// skipped; regions off the current display are kept and logged.
func (s *Supervisor) Load(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	recs, err := s.store.LoadInstances(ctx)
	if err != nil {
		return 0, fmt.Errorf("load instances: %w", err)
	}
	n := 0
	for _, rec := range recs {
		region := RegionFromArray(rec.Region)
		intervals := [NumCadences]time.Duration{
			time.Duration(rec.IntervalA) * time.Second,
			time.Duration(rec.IntervalB) * time.Second,
		}
		if _, err := s.reg.Add(rec.Name, region, intervals); err != nil {
			s.log.Warn("skipping persisted instance", logx.String("instance", rec.Name), logx.Err(err))
			continue
		}
		if err := s.exec.ValidateRegion(ctx, region); err != nil {
			s.log.Warn("persisted instance region not on display", logx.String("instance", rec.Name), logx.Err(err))
		}
		n++
	}
	s.log.Info("instances loaded", logx.Int("count", n))
	return n, nil
}

// Probe sends payload to the instance's region once, outside any cadence.
func (s *Supervisor) Probe(ctx context.Context, name, payload string) error {
	inst, err := s.reg.Get(name)
	if err != nil {
		return err
	}
	return s.exec.Execute(ctx, inst, Action{Cadence: "probe", Payload: payload}, s.settings.Load())
}

func (s *Supervisor) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	list := s.reg.List()
	recs := make([]storage.InstanceRecord, 0, len(list))
	for _, inst := range list {
		recs = append(recs, storage.InstanceRecord{
			Name:      inst.Name,
			Region:    inst.Region.Array(),
			IntervalA: int(inst.Cadences[CadenceA].Interval / time.Second),
			IntervalB: int(inst.Cadences[CadenceB].Interval / time.Second),
		})
	}
	if err := s.store.SaveInstances(ctx, recs); err != nil {
		s.log.Error("persist instances failed", logx.Err(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Supervisor) setState(name string, st RunState) {
	prev, err := s.reg.SetRunState(name, st)
	if err != nil || prev == st {
		return
	}
	publish(s.bus, eventbus.InstanceState, StateEvent{Instance: name, From: prev, To: st})
}

package appshell

import (
	"context"
	"slices"
	"sync"
	"time"
)

// ReconcilerConfig wires a Reconciler to its collaborators. Registry and
// Locations are required; everything else has a no-op default.
type ReconcilerConfig struct {
	Registry  *Registry
	Locations LocationSource
	Gate      StartGate
	Replayer  EventReplayer
	Logger    Logger
	Reporter  ErrorReporter
	Metrics   MetricsRecorder
	// Emit publishes lifecycle and pass events.
	Emit func(ctx context.Context, eventType string, data map[string]any)
}

// Reconciler is the single-flight controller. At most one pass runs at a time;
// triggers arriving during a pass are queued in arrival order and folded into
// the next pass once the current one settles.
//
// Navigation events are replayed off the pass goroutine, one batch after
// another in pass order, so a listener may navigate and wait for the result.
//
// The pass-in-progress flag, the trigger queue and the replay chain are only
// touched under mu.
type Reconciler struct {
	ctx       context.Context
	registry  *Registry
	locations LocationSource
	gate      StartGate
	replayer  EventReplayer
	logger    Logger
	metrics   MetricsRecorder
	emit      func(ctx context.Context, eventType string, data map[string]any)
	machine   *machine

	mu       sync.Mutex
	underway bool
	queue    batch
	// replaying counts batches whose events are not fully replayed yet.
	replaying int
	// lastReplay closes when the most recently scheduled replay finished.
	lastReplay <-chan struct{}
	// quiet is closed while no pass runs and no replay is pending.
	quiet chan struct{}
}

// NewReconciler creates a reconciler. ctx bounds the shell's lifetime: once it
// is done, transitions that have not started are refused and the pending
// triggers of that pass are rejected.
func NewReconciler(ctx context.Context, cfg ReconcilerConfig) *Reconciler {
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Emit == nil {
		cfg.Emit = func(context.Context, string, map[string]any) {}
	}
	if cfg.Gate == nil {
		cfg.Gate = &Gate{}
	}
	if cfg.Reporter == nil {
		logger := cfg.Logger
		cfg.Reporter = ErrorReporterFunc(func(_ context.Context, app string, action Action, err error) {
			logger.Error("Application lifecycle failed", "app", app, "action", action, "error", err)
		})
	}
	quiet := make(chan struct{})
	close(quiet)
	return &Reconciler{
		ctx:       ctx,
		registry:  cfg.Registry,
		locations: cfg.Locations,
		gate:      cfg.Gate,
		replayer:  cfg.Replayer,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		emit:      cfg.Emit,
		machine: &machine{
			logger:   cfg.Logger,
			reporter: cfg.Reporter,
			metrics:  cfg.Metrics,
			emit:     cfg.Emit,
		},
		quiet: quiet,
	}
}

// Invoke requests a reconciliation pass. event is the navigation that caused
// the trigger, or nil. The returned future settles with the mounted set when
// the pass that processes this trigger finishes.
func (r *Reconciler) Invoke(event *NavigationEvent) *Future {
	req := newTriggerRequest(event)

	r.mu.Lock()
	if r.underway {
		r.queue = append(r.queue, req)
		depth := len(r.queue)
		r.mu.Unlock()
		r.metrics.SetQueueDepth(depth)
		r.logger.Debug("Pass underway, trigger queued", "depth", depth)
		return req.future
	}
	r.underway = true
	select {
	case <-r.quiet:
		r.quiet = make(chan struct{})
	default:
	}
	r.mu.Unlock()

	go r.drain(batch{req})
	return req.future
}

// Mounted returns a point-in-time snapshot of the mounted applications.
func (r *Reconciler) Mounted() []AppSnapshot {
	return snapshots(r.registry.Mounted())
}

// Underway reports whether a pass is running.
func (r *Reconciler) Underway() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.underway
}

// WaitIdle blocks until no pass is running, the queue is empty and every
// navigation event has been replayed.
func (r *Reconciler) WaitIdle(ctx context.Context) error {
	r.mu.Lock()
	quiet := r.quiet
	r.mu.Unlock()
	select {
	case <-quiet:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs passes until no trigger is left. It loops instead of recursing so
// a sustained stream of triggers does not grow the stack.
func (r *Reconciler) drain(b batch) {
	for len(b) > 0 {
		r.pass(b)
		next, turn := r.handoff(b)
		if turn != nil {
			go r.replay(b, turn)
		}
		b = next
	}
}

// replayTurn orders one batch's replay after the previous batch's.
type replayTurn struct {
	after <-chan struct{}
	done  chan struct{}
}

// handoff schedules the settled batch's replay, then either releases the
// single-flight flag or swaps the queue out as the next batch, in one critical
// section so no trigger can slip in between.
func (r *Reconciler) handoff(settled batch) (batch, *replayTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var turn *replayTurn
	if r.replayer != nil && len(settled.events()) > 0 {
		turn = &replayTurn{after: r.lastReplay, done: make(chan struct{})}
		r.lastReplay = turn.done
		r.replaying++
	}

	if len(r.queue) == 0 {
		r.underway = false
		r.closeQuietLocked()
		return nil, turn
	}
	next := r.queue
	r.queue = nil
	r.metrics.SetQueueDepth(0)
	r.logger.Debug("Draining queued triggers", "count", len(next))
	return next, turn
}

// closeQuietLocked closes quiet once nothing runs and nothing waits to replay.
func (r *Reconciler) closeQuietLocked() {
	if r.underway || r.replaying > 0 {
		return
	}
	select {
	case <-r.quiet:
	default:
		close(r.quiet)
	}
}

func (r *Reconciler) pass(b batch) {
	id := newID()
	mode := PassModePreStart
	if r.gate.Started() {
		mode = PassModeFull
	}
	start := time.Now()
	r.emit(r.ctx, EventTypePassStarted, map[string]any{
		"pass":     id,
		"mode":     mode,
		"triggers": len(b),
	})

	var err error
	if mode == PassModeFull {
		err = r.performAppChanges(id)
	} else {
		r.loadApps(id)
	}
	duration := time.Since(start)

	if err != nil {
		r.logger.Error("Reconciliation pass failed", "pass", id, "mode", mode, "error", err)
		b.reject(err)
		r.metrics.ObservePass(mode, "failure", duration)
		r.emit(r.ctx, EventTypePassFailed, map[string]any{
			"pass":  id,
			"mode":  mode,
			"error": err.Error(),
		})
	} else {
		mounted := r.Mounted()
		b.resolve(mounted)
		r.metrics.SetMounted(len(mounted))
		r.metrics.ObservePass(mode, "success", duration)
		r.logger.Info("Reconciliation pass completed", "pass", id, "mode", mode, "mounted", Names(mounted), "duration", duration)
		r.emit(r.ctx, EventTypePassCompleted, map[string]any{
			"pass":    id,
			"mode":    mode,
			"mounted": Names(mounted),
		})
	}
}

// loadApps is the pre-start pass: load everything that should be active, each
// application in isolation.
func (r *Reconciler) loadApps(passID string) {
	toLoad := r.registry.ToLoad(r.locations.Location())
	r.logger.Debug("Pre-start candidates", "pass", passID, "load", appNames(toLoad))

	loads := startJoin(toLoad, func(app *App) error {
		return r.machine.load(r.ctx, app)
	})
	for _, o := range loads.wait() {
		if o.err != nil {
			r.logger.Warn("Application not loaded before start", "pass", passID, "app", o.app.Name(), "error", o.err)
		}
	}
}

// performAppChanges is the full pass. Outgoing applications unmount while
// incoming ones load and bootstrap; no incoming application mounts before
// every unmount of this pass has settled.
func (r *Reconciler) performAppChanges(passID string) error {
	loc := r.locations.Location()
	toUnmount := r.registry.ToUnmount(loc)
	toLoad := r.registry.ToLoad(loc)
	toMount := slices.DeleteFunc(r.registry.ToMount(loc), func(a *App) bool {
		return slices.Contains(toLoad, a)
	})
	r.logger.Debug("Reconciliation candidates",
		"pass", passID,
		"location", loc.String(),
		"unmount", appNames(toUnmount),
		"load", appNames(toLoad),
		"mount", appNames(toMount))

	unmounts := startJoin(toUnmount, func(app *App) error {
		return r.machine.unmount(r.ctx, app)
	})

	loading := make(map[*App]bool, len(toLoad))
	for _, a := range toLoad {
		loading[a] = true
	}
	incoming := make([]*App, 0, len(toLoad)+len(toMount))
	incoming = append(incoming, toLoad...)
	incoming = append(incoming, toMount...)

	mounts := startJoin(incoming, func(app *App) error {
		if loading[app] {
			if err := r.machine.load(r.ctx, app); err != nil {
				return err
			}
		}
		if err := r.machine.bootstrap(r.ctx, app); err != nil {
			return err
		}
		unmounts.wait()
		return r.machine.mount(r.ctx, app)
	})

	if err := unmounts.err(); err != nil {
		r.logger.Warn("Unmount phase reported failures, mounting anyway", "pass", passID, "error", err)
	}
	return mounts.unrecovered()
}

// replay hands the batch's navigation events to the replayer in arrival order,
// once every earlier batch has been replayed.
func (r *Reconciler) replay(b batch, turn *replayTurn) {
	defer func() {
		close(turn.done)
		r.mu.Lock()
		r.replaying--
		r.closeQuietLocked()
		r.mu.Unlock()
	}()
	if turn.after != nil {
		<-turn.after
	}
	for _, event := range b.events() {
		r.replayer.Replay(r.ctx, event)
		r.emit(r.ctx, EventTypeNavigationReplayed, map[string]any{
			"navigation": event.ID,
			"to":         event.To.String(),
		})
	}
}

func appNames(apps []*App) []string {
	names := make([]string, len(apps))
	for i, a := range apps {
		names[i] = a.Name()
	}
	return names
}

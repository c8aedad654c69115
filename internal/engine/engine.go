package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/jonboulle/clockwork"
)

// User-visible notices shown when the observer location is unavailable.
const (
	NoticeLocationFailed = "Could not retrieve precise location. Showing global events."
	NoticeUnsupported    = "Geolocation is not supported. Showing global events."
)

// SnapshotFetcher retrieves the bulk snapshot of events, scoped to the
// observer when one is known.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, observer domain.ObserverSnapshot) ([]domain.Event, error)
}

// Sensor produces one observer location, or fails.
type Sensor interface {
	Locate(ctx context.Context) (domain.Point, error)
}

// Labeler resolves a human-readable place name for the observer.
type Labeler interface {
	Label(ctx context.Context, p domain.Point) (string, error)
}

// Options configures an Engine.
type Options struct {
	RadiusKm           float64
	StaleSnapshotGuard bool
	Labeler            Labeler
	Clock              clockwork.Clock
	LabelTimeout       time.Duration
}

// Engine reconciles snapshot fetches, stream pushes, and observer changes into
// one ranked display set. Triggers are serialized; each one annotates, ranks
// and replaces the set before the next begins.
type Engine struct {
	fetcher SnapshotFetcher
	labeler Labeler
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	guard   bool

	labelTimeout time.Duration

	mu        sync.Mutex
	observer  *domain.ObserverState
	events    []domain.AnnotatedEvent
	loading   bool
	notice    string
	label     string
	streamSeq uint64
	version   uint64
	closed    bool

	view  atomic.Pointer[View]
	ready atomic.Bool

	subMu sync.Mutex
	subs  map[*subscription]struct{}

	labelCtx    context.Context
	labelCancel context.CancelFunc
	labelWG     sync.WaitGroup
}

type subscription struct {
	ch chan View
}

// New creates an Engine with an empty display set, no observer, and loading set.
func New(fetcher SnapshotFetcher, logger *slog.Logger, metrics *observability.Metrics, opts Options) (*Engine, error) {
	if opts.RadiusKm == 0 {
		opts.RadiusKm = domain.DefaultRadiusKm
	}
	observer, err := domain.NewObserverState(opts.RadiusKm)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.LabelTimeout <= 0 {
		opts.LabelTimeout = 5 * time.Second
	}

	labelCtx, labelCancel := context.WithCancel(context.Background())
	e := &Engine{
		fetcher:      fetcher,
		labeler:      opts.Labeler,
		logger:       logger,
		metrics:      metrics,
		clock:        opts.Clock,
		guard:        opts.StaleSnapshotGuard,
		labelTimeout: opts.LabelTimeout,
		observer:     observer,
		events:       []domain.AnnotatedEvent{},
		loading:      true,
		subs:         make(map[*subscription]struct{}),
		labelCtx:     labelCtx,
		labelCancel:  labelCancel,
	}
	e.mu.Lock()
	e.publishLocked(TriggerInit)
	e.mu.Unlock()
	return e, nil
}

// View returns the most recently published view.
func (e *Engine) View() View {
	return *e.view.Load()
}

// CheckReadiness returns nil once the first snapshot has been applied.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("engine has not applied a snapshot yet")
	}
	return nil
}

// Start performs the startup location request: one sensor reading, then either
// OnSensorFix or OnSensorError.
func (e *Engine) Start(ctx context.Context, sensor Sensor) {
	p, err := sensor.Locate(ctx)
	if err != nil {
		e.OnSensorError(ctx, err)
		return
	}
	e.OnSensorFix(ctx, p.Lat, p.Lon)
}

// OnSnapshotFetched applies a snapshot as the new display set.
func (e *Engine) OnSnapshotFetched(events []domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.replaceLocked(events)
	e.loading = false
	e.ready.Store(true)
	e.publishLocked(TriggerSnapshot)
}

// OnStreamMessage applies a pushed payload as the new display set. Each
// message is a complete replacement.
func (e *Engine) OnStreamMessage(events []domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.streamSeq++
	e.replaceLocked(events)
	e.publishLocked(TriggerStream)
}

// OnManualRelocate moves the observer and re-ranks the existing set without
// fetching. A known observer clears any location notice. Invalid coordinates
// leave everything unchanged.
func (e *Engine) OnManualRelocate(lat, lon float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.relocateLocked(lat, lon); err != nil {
		return err
	}
	e.publishLocked(TriggerRelocate)
	e.scheduleLabelLocked()
	return nil
}

// OnRadiusChange sets a new radius and re-ranks the existing set. Distances
// do not depend on the radius, so events are not re-annotated.
func (e *Engine) OnRadiusChange(km float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.observer.SetRadius(km); err != nil {
		return err
	}
	obs := e.observer.Get()
	e.events = domain.Rank(e.events, obs.Location, obs.RadiusKm)
	e.publishLocked(TriggerRadius)
	return nil
}

// OnSensorFix records a sensor location, re-ranks the existing set, then
// refreshes the snapshot scoped to the new observer.
func (e *Engine) OnSensorFix(ctx context.Context, lat, lon float64) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if err := e.relocateLocked(lat, lon); err != nil {
		e.mu.Unlock()
		e.logger.Warn("sensor reported invalid coordinates", "lat", lat, "lon", lon, "error", err)
		e.OnSensorError(ctx, err)
		return
	}
	e.publishLocked(TriggerSensorFix)
	e.scheduleLabelLocked()
	e.mu.Unlock()

	e.Refresh(ctx)
}

// OnSensorError records the location notice, keeps the observer unset, and
// refreshes the global snapshot.
func (e *Engine) OnSensorError(ctx context.Context, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	notice := NoticeLocationFailed
	if errors.Is(err, domain.ErrSensorUnsupported) {
		notice = NoticeUnsupported
	}
	e.logger.Warn("observer location unavailable", "error", err)
	e.notice = notice
	e.publishLocked(TriggerSensorError)
	e.mu.Unlock()

	e.Refresh(ctx)
}

// Refresh fetches a snapshot for the current observer and applies it. A failed
// fetch applies an empty set; loading is cleared either way. The fetch is not
// cancelled with ctx: it is bounded by the fetcher's own timeout, and a result
// landing after Close is dropped.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	obs := e.observer.Get()
	seq := e.streamSeq
	if !e.loading {
		e.loading = true
		e.publishLocked(TriggerRefresh)
	}
	e.mu.Unlock()

	start := e.clock.Now()
	events, err := e.fetcher.FetchSnapshot(context.WithoutCancel(ctx), obs)
	e.metrics.SnapshotFetchDuration.Observe(e.clock.Since(start).Seconds())
	if err != nil {
		e.logger.Error("snapshot fetch failed", "error", err)
		e.metrics.SnapshotFetches.WithLabelValues("error").Inc()
		events = []domain.Event{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.guard && e.streamSeq != seq {
		e.logger.Info("discarding snapshot older than latest stream message",
			"fetch_seq", seq, "stream_seq", e.streamSeq)
		e.metrics.SnapshotFetches.WithLabelValues("stale").Inc()
		e.loading = false
		e.ready.Store(true)
		e.publishLocked(TriggerSnapshot)
		return
	}
	if err == nil {
		e.metrics.SnapshotFetches.WithLabelValues("success").Inc()
	}
	e.replaceLocked(events)
	e.loading = false
	e.ready.Store(true)
	e.publishLocked(TriggerSnapshot)
}

// RunRefresher calls Refresh every interval until ctx is cancelled.
func (e *Engine) RunRefresher(ctx context.Context, interval time.Duration) {
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.Refresh(ctx)
		}
	}
}

// Subscribe returns a channel receiving every view published from now on and
// a function that cancels the subscription. A subscriber that falls more than
// buffer views behind misses views rather than stalling the engine.
func (e *Engine) Subscribe(buffer int) (<-chan View, func()) {
	sub := &subscription{ch: make(chan View, buffer)}

	e.subMu.Lock()
	if e.subs == nil {
		close(sub.ch)
		e.subMu.Unlock()
		return sub.ch, func() {}
	}
	e.subs[sub] = struct{}{}
	e.subMu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			if _, ok := e.subs[sub]; ok {
				delete(e.subs, sub)
				close(sub.ch)
			}
		})
	}
}

// Close stops the engine. Results arriving afterwards are ignored and all
// subscription channels are closed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.labelCancel()
	e.labelWG.Wait()

	e.subMu.Lock()
	for sub := range e.subs {
		close(sub.ch)
	}
	e.subs = nil
	e.subMu.Unlock()
}

// replaceLocked annotates events for the current observer, ranks them, and
// installs the result as the display set.
func (e *Engine) replaceLocked(events []domain.Event) {
	obs := e.observer.Get()
	e.events = domain.Rank(domain.Annotate(events, obs.Location), obs.Location, obs.RadiusKm)
}

func (e *Engine) relocateLocked(lat, lon float64) error {
	if err := e.observer.SetLocation(lat, lon); err != nil {
		return err
	}
	obs := e.observer.Get()
	e.events = domain.Rank(domain.Reannotate(e.events, obs.Location), obs.Location, obs.RadiusKm)
	e.label = ""
	e.notice = ""
	return nil
}

// scheduleLabelLocked looks up the observer label in the background. The
// result is applied only if the observer has not moved in the meantime.
func (e *Engine) scheduleLabelLocked() {
	if e.labeler == nil {
		return
	}
	loc := e.observer.Get().Location
	if loc == nil {
		return
	}
	at := *loc

	e.labelWG.Add(1)
	go func() {
		defer e.labelWG.Done()

		ctx, cancel := context.WithTimeout(e.labelCtx, e.labelTimeout)
		defer cancel()

		label, err := e.labeler.Label(ctx, at)
		if err != nil {
			e.logger.Warn("observer label lookup failed", "lat", at.Lat, "lon", at.Lon, "error", err)
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return
		}
		current := e.observer.Get().Location
		if current == nil || *current != at {
			return
		}
		e.label = label
		e.publishLocked(TriggerLabel)
	}()
}

// publishLocked builds an immutable view from the current state, swaps it in,
// and fans it out to subscribers.
func (e *Engine) publishLocked(trigger Trigger) {
	obs := e.observer.Get()
	e.version++

	v := &View{
		Events:     e.events,
		Observer:   obs.Location,
		RadiusKm:   obs.RadiusKm,
		InRadius:   domain.CountInRadius(e.events, obs.RadiusKm),
		RiskCounts: domain.CountByRisk(e.events),
		Loading:    e.loading,
		Notice:     e.notice,
		Label:      e.label,
		Trigger:    trigger,
		Version:    e.version,
		UpdatedAt:  e.clock.Now(),
	}
	e.view.Store(v)

	e.metrics.Triggers.WithLabelValues(string(trigger)).Inc()
	e.metrics.DisplayedEvents.Set(float64(len(v.Events)))
	e.metrics.InRadiusEvents.Set(float64(v.InRadius))

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for sub := range e.subs {
		select {
		case sub.ch <- *v:
		default:
		}
	}
}

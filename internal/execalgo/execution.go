package execalgo

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/router"
	"github.com/liquidroute/liquidroute/internal/venue"
)

// State is the lifecycle of a parent order.
type State string

const (
	StateScheduled State = "scheduled"
	StateSlicing   State = "slicing"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// EventType tags events emitted by a running parent order.
type EventType string

const (
	EventSliceExecuted EventType = "slice_executed"
	EventCompleted     EventType = "completed"
	EventAlert         EventType = "alert"
)

// Event is one item on a handle's event stream.
type Event struct {
	Type     EventType `json:"type"`
	Time     time.Time `json:"time"`
	Progress Progress  `json:"progress"`
	Metrics  Metrics   `json:"metrics"`
	Alert    *Alert    `json:"alert,omitempty"`
	Result   *Result   `json:"result,omitempty"`
}

// Progress is the point-in-time view of a parent order.
type Progress struct {
	ParentID  string  `json:"parent_id"`
	State     State   `json:"state"`
	Filled    float64 `json:"filled"`
	Remaining float64 `json:"remaining"`
	Slices    int     `json:"slices"`
}

// Result is the terminal summary of a parent order.
type Result struct {
	ParentID     string        `json:"parent_id"`
	State        State         `json:"state"`
	FilledQty    float64       `json:"filled_qty"`
	AvgFillPrice float64       `json:"avg_fill_price"`
	FeesPaid     float64       `json:"fees_paid"`
	Slices       int           `json:"slices"`
	Elapsed      time.Duration `json:"elapsed"`
	Metrics      Metrics       `json:"metrics"`
}

// OrderRouter is the spatial routing dependency: one call per slice.
type OrderRouter interface {
	RouteOrder(ctx context.Context, order *router.Order) (*router.RoutingDecision, error)
}

// Submitter places a child order on its venue.
type Submitter interface {
	Submit(ctx context.Context, child venue.ChildOrder) (venue.FillResult, error)
}

// VolumeSource reports market volume observed since a cutoff, for POV sizing
// and participation metrics.
type VolumeSource interface {
	VolumeSince(symbol string, cutoff time.Time) float64
}

// OutcomeSink receives per-venue execution outcomes, feeding the performance
// tracker.
type OutcomeSink interface {
	RecordOutcome(outcome venue.ExecutionOutcome)
}

// AdapterSubmitter routes child orders to registered venue adapters.
type AdapterSubmitter struct {
	mu       sync.RWMutex
	adapters map[string]venue.Adapter
}

// NewAdapterSubmitter creates an empty submitter.
func NewAdapterSubmitter() *AdapterSubmitter {
	return &AdapterSubmitter{adapters: make(map[string]venue.Adapter)}
}

// Register installs the adapter for a venue.
func (s *AdapterSubmitter) Register(venueID string, adapter venue.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[venueID] = adapter
}

// Submit dispatches the child order to its venue's adapter.
func (s *AdapterSubmitter) Submit(ctx context.Context, child venue.ChildOrder) (venue.FillResult, error) {
	s.mu.RLock()
	adapter, ok := s.adapters[child.Venue]
	s.mu.RUnlock()
	if !ok {
		return venue.FillResult{}, fmt.Errorf("no adapter registered for venue %s", child.Venue)
	}
	return adapter.SubmitOrder(ctx, child)
}

// consecutive routing failures before a parent order is declared failed
const maxRouteFailures = 3

// hard cap on slices for the open-ended schedules
const maxSliceCount = 1000

// Layer runs execution algorithms over the router. One Layer serves many
// concurrent parent orders; each Start spawns an independent run loop.
type Layer struct {
	router   OrderRouter
	submit   Submitter
	volume   VolumeSource
	outcomes OutcomeSink

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
	seed  func() int64
}

// LayerOption customizes layer construction.
type LayerOption func(*Layer)

// WithOutcomeSink forwards per-venue fill outcomes, typically to the
// router's performance tracker.
func WithOutcomeSink(sink OutcomeSink) LayerOption {
	return func(l *Layer) { l.outcomes = sink }
}

// WithClock replaces wall-clock time and timers, for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) LayerOption {
	return func(l *Layer) { l.now, l.after = now, after }
}

// WithSeed fixes the randomization seed, for tests.
func WithSeed(seed int64) LayerOption {
	return func(l *Layer) { l.seed = func() int64 { return seed } }
}

// NewLayer constructs the execution layer with explicit dependencies.
func NewLayer(orderRouter OrderRouter, submit Submitter, volume VolumeSource, opts ...LayerOption) (*Layer, error) {
	if orderRouter == nil || submit == nil || volume == nil {
		return nil, fmt.Errorf("execution layer requires router, submitter, and volume source")
	}
	l := &Layer{
		router: orderRouter,
		submit: submit,
		volume: volume,
		now:    time.Now,
		after:  time.After,
		seed:   func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Handle controls one running parent order.
type Handle struct {
	ID string

	mu       sync.Mutex
	state    State
	filled   float64
	slices   int
	metrics  Metrics
	resumeCh chan struct{}

	parentQty float64
	events    chan Event
	done      chan struct{}
	cancel    context.CancelFunc
}

// Start validates the parent order and config and begins slicing in the
// background. The returned handle controls and observes the run.
func (l *Layer) Start(ctx context.Context, order router.Order, cfg Config) (*Handle, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("execution config: %w", err)
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:        order.ID,
		state:     StateScheduled,
		parentQty: order.Quantity,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go l.run(runCtx, h, order, cfg)

	log.Info().Str("parent", h.ID).Str("algo", string(cfg.Algorithm)).
		Float64("qty", order.Quantity).Msg("Execution started")
	return h, nil
}

// Events is the handle's event stream. It is closed after the terminal
// event; slow consumers lose intermediate events rather than blocking the
// run loop.
func (h *Handle) Events() <-chan Event { return h.events }

// Done is closed when the parent order reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Progress returns the point-in-time fill progress.
func (h *Handle) Progress() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Progress{
		ParentID:  h.ID,
		State:     h.state,
		Filled:    h.filled,
		Remaining: h.parentQty - h.filled,
		Slices:    h.slices,
	}
}

// Metrics returns the latest execution-quality metrics.
func (h *Handle) Metrics() Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics
}

// Pause halts new slice submission. In-flight slices finish normally.
func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return fmt.Errorf("parent order %s is %s", h.ID, h.state)
	}
	if h.state == StatePaused {
		return nil
	}
	h.state = StatePaused
	h.resumeCh = make(chan struct{})
	return nil
}

// Resume restarts slice submission after a pause.
func (h *Handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	// resumeCh is nil when Cancel already fired while paused; the run loop
	// is on its way to a terminal state and must not be restarted.
	if h.state != StatePaused || h.resumeCh == nil {
		return fmt.Errorf("cannot resume parent order %s in state %s", h.ID, h.state)
	}
	h.state = StateSlicing
	close(h.resumeCh)
	h.resumeCh = nil
	return nil
}

// Cancel terminally stops all future scheduling. Idempotent.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return
	}
	if h.resumeCh != nil {
		close(h.resumeCh)
		h.resumeCh = nil
	}
	h.mu.Unlock()
	h.cancel()
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// waitIfPaused blocks while the handle is paused. Returns false when the
// run context is cancelled.
func (h *Handle) waitIfPaused(ctx context.Context) bool {
	for {
		h.mu.Lock()
		ch := h.resumeCh
		paused := h.state == StatePaused
		h.mu.Unlock()
		if !paused || ch == nil {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-ch:
		}
	}
}

// emit publishes an event without ever blocking the run loop.
func (h *Handle) emit(ev Event) {
	select {
	case h.events <- ev:
	default:
		log.Warn().Str("parent", h.ID).Str("type", string(ev.Type)).
			Msg("Event buffer full, dropping execution event")
	}
}

// run is the per-parent-order loop: size a slice, route it, execute the
// routes with failover, account, wait, repeat.
func (l *Layer) run(ctx context.Context, h *Handle, order router.Order, cfg Config) {
	start := l.now()
	rng := rand.New(rand.NewSource(l.seed()))
	sched := newScheduler(cfg, order.Quantity, rng)
	mon := newMonitor(cfg, order.Side == market.Buy)
	lastSlice := start

	h.setState(StateSlicing)

	remaining := order.Quantity
	routeFailures := 0
	finish := func(state State) {
		l.finish(h, state, start, mon, order)
	}

	for slice := 1; ; slice++ {
		if !h.waitIfPaused(ctx) {
			finish(StateCancelled)
			return
		}
		if remaining <= 1e-9 {
			finish(StateCompleted)
			return
		}
		if slice > maxSliceCount {
			log.Error().Str("parent", h.ID).Msg("Slice cap reached, failing parent order")
			finish(StateFailed)
			return
		}

		observed := l.volume.VolumeSince(order.Symbol, lastSlice)
		lastSlice = l.now()
		plan := sched.next(remaining, observed)
		if v, ok := sched.(*vwapScheduler); ok {
			mon.setScheduleTarget(v.targetFraction(slice))
		}

		if plan.qty > 1e-9 {
			filled, avgPrice, fees, rotations, err := l.executeSlice(ctx, h, order, plan.qty)
			if err != nil {
				if ctx.Err() != nil {
					finish(StateCancelled)
					return
				}
				if router.IsInsufficientLiquidity(err) {
					// Recoverable: skip this slice and let liquidity return.
					mon.recordSlice(plan.qty, 0, 0, 0, 0)
					h.emit(Event{
						Type: EventAlert, Time: l.now(),
						Progress: h.Progress(),
						Alert: &Alert{
							Metric:  "insufficient_liquidity",
							Message: err.Error(),
						},
					})
				} else {
					routeFailures++
					log.Warn().Err(err).Str("parent", h.ID).Int("failures", routeFailures).
						Msg("Slice routing failed")
					if routeFailures >= maxRouteFailures {
						finish(StateFailed)
						return
					}
				}
			} else {
				routeFailures = 0
				remaining -= filled
				mon.recordSlice(plan.qty, filled, avgPrice, fees, rotations)

				volume := l.volume.VolumeSince(order.Symbol, start)
				metrics := mon.snapshot(order.Quantity, volume)
				h.mu.Lock()
				h.filled = order.Quantity - remaining
				h.slices++
				h.metrics = metrics
				h.mu.Unlock()

				h.emit(Event{
					Type: EventSliceExecuted, Time: l.now(),
					Progress: h.Progress(), Metrics: metrics,
				})
				for _, alert := range mon.alerts(metrics) {
					alert := alert
					h.emit(Event{
						Type: EventAlert, Time: l.now(),
						Progress: h.Progress(), Metrics: metrics, Alert: &alert,
					})
				}
			}
		}

		if remaining <= 1e-9 {
			finish(StateCompleted)
			return
		}
		if plan.done {
			// Schedule exhausted with quantity unfilled; failed or skipped
			// slices must not masquerade as a completed parent.
			log.Warn().Str("parent", h.ID).Float64("remaining", remaining).
				Msg("Schedule exhausted with unfilled quantity")
			finish(StateFailed)
			return
		}

		select {
		case <-ctx.Done():
			finish(StateCancelled)
			return
		case <-l.after(plan.wait):
		}
	}
}

// executeSlice routes one slice and submits its routes in priority order,
// backup-flagged routes last. When a venue rejects or errors, the unfilled
// quantity rolls forward to the next route.
func (l *Layer) executeSlice(ctx context.Context, h *Handle, parent router.Order, qty float64) (filled, avgPrice, fees float64, rotations int, err error) {
	child := parent
	child.ID = fmt.Sprintf("%s-s%d", parent.ID, h.Progress().Slices+1)
	child.Quantity = qty

	decision, err := l.router.RouteOrder(ctx, &child)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	routes := make([]router.ExecutionRoute, len(decision.Routes))
	copy(routes, decision.Routes)
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Backup != routes[j].Backup {
			return !routes[i].Backup
		}
		return routes[i].Priority < routes[j].Priority
	})

	notional := 0.0
	carry := 0.0
	for _, route := range routes {
		want := route.Quantity + carry
		carry = 0
		fill, submitErr := l.submit.Submit(ctx, venue.ChildOrder{
			Venue:      route.Venue,
			Symbol:     parent.Symbol,
			Side:       parent.Side,
			Quantity:   want,
			LimitPrice: parent.LimitPrice,
			Type:       parent.Type,
		})

		failed := submitErr != nil || fill.Rejected
		if l.outcomes != nil {
			l.outcomes.RecordOutcome(venue.ExecutionOutcome{
				VenueID:       route.Venue,
				RequestedQty:  want,
				FilledQty:     fill.FilledQty,
				ExpectedPrice: route.EstPrice,
				AvgFillPrice:  fill.AvgFillPrice,
				LatencyMs:     fill.LatencyMs,
				Failed:        failed,
				Timestamp:     l.now(),
			})
		}
		if failed {
			// Rotate the unfilled quantity to the next route instead of
			// failing the whole slice.
			carry = want
			rotations++
			log.Warn().Str("parent", parent.ID).Str("venue", route.Venue).
				Err(submitErr).Str("reason", fill.Reason).
				Msg("Child order failed, rotating to next venue")
			continue
		}
		filled += fill.FilledQty
		notional += fill.FilledQty * fill.AvgFillPrice
		fees += fill.FeePaid
		if short := want - fill.FilledQty; short > 1e-9 {
			carry = short
		}
	}
	if filled > 0 {
		avgPrice = notional / filled
	}
	return filled, avgPrice, fees, rotations, nil
}

// finish moves the handle to a terminal state and emits the final event.
func (l *Layer) finish(h *Handle, state State, start time.Time, mon *monitor, order router.Order) {
	volume := l.volume.VolumeSince(order.Symbol, start)
	metrics := mon.snapshot(order.Quantity, volume)

	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return
	}
	h.state = state
	h.metrics = metrics
	filled := h.filled
	slices := h.slices
	h.mu.Unlock()

	result := &Result{
		ParentID:     h.ID,
		State:        state,
		FilledQty:    filled,
		AvgFillPrice: metrics.AvgFillPrice,
		FeesPaid:     metrics.FeesPaid,
		Slices:       slices,
		Elapsed:      l.now().Sub(start),
		Metrics:      metrics,
	}
	h.emit(Event{
		Type: EventCompleted, Time: l.now(),
		Progress: h.Progress(), Metrics: metrics, Result: result,
	})
	close(h.events)
	close(h.done)
	h.cancel()

	log.Info().Str("parent", h.ID).Str("state", string(state)).
		Float64("filled", filled).Int("slices", slices).
		Msg("Execution finished")
}

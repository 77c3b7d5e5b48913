package alerts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rcrowley/go-metrics"

	"coffee-fleet-console/config"
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/poller"
)

// State is the client-side lifecycle of one alert.
type State string

const (
	StateVisible       State = "VISIBLE"
	StateAcknowledging State = "ACKNOWLEDGING"
	StateAcknowledged  State = "ACKNOWLEDGED"
)

// ErrAcknowledgeInProgress is returned when the alert is already being acknowledged.
var ErrAcknowledgeInProgress = errors.New("alert acknowledgement already in progress")

// Service is the subset of the alerts API the tracker uses.
type Service interface {
	List(ctx context.Context) ([]backend.Alert, error)
	Acknowledge(ctx context.Context, id backend.ID) error
}

// Dispatcher receives critical alerts the tracker sees for the first time.
type Dispatcher interface {
	Dispatch(alert backend.Alert)
}

// Tracker polls active alerts and masks the ones acknowledged locally until
// the backend catches up or the mask expires.
type Tracker struct {
	api        Service
	dispatcher Dispatcher
	interval   time.Duration
	now        func() time.Time

	acked *cache.Cache
	loop  *poller.Loop

	pollFailed metrics.Counter
	ackCount   metrics.Counter

	mu        sync.RWMutex
	gen       uint64
	active    []backend.Alert
	states    map[backend.ID]State
	notified  map[backend.ID]struct{}
	primed    bool
	lastPoll  time.Time
	lastErr   string
	listeners []func([]backend.Alert)
}

// NewTracker creates a tracker. dispatcher and registry may be nil.
func NewTracker(api Service, cfg config.AlertsConfig, dispatcher Dispatcher, registry metrics.Registry) *Tracker {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	ttl := cfg.AckTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	t := &Tracker{
		api:        api,
		dispatcher: dispatcher,
		interval:   cfg.PollInterval,
		now:        time.Now,
		acked:      cache.New(ttl, 2*ttl),
		pollFailed: metrics.GetOrRegisterCounter("alerts.poll.failed", registry),
		ackCount:   metrics.GetOrRegisterCounter("alerts.acknowledged", registry),
		states:     map[backend.ID]State{},
		notified:   map[backend.ID]struct{}{},
	}
	t.loop = poller.New("alert poll", 0, func(ctx context.Context) {
		if err := t.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Alert poll failed: %v", err)
		}
	})
	return t
}

// OnUpdate registers fn to receive the active list after every poll or acknowledgement.
func (t *Tracker) OnUpdate(fn func([]backend.Alert)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Start begins polling.
func (t *Tracker) Start(ctx context.Context) {
	t.loop.Start(ctx, t.interval)
}

// Stop halts polling.
func (t *Tracker) Stop() {
	t.loop.Stop()
}

// Reset stops polling and forgets every alert, including the acknowledged mask.
func (t *Tracker) Reset() {
	t.loop.Stop()

	t.mu.Lock()
	t.acked.Flush()
	t.gen++
	t.active = nil
	t.states = map[backend.ID]State{}
	t.notified = map[backend.ID]struct{}{}
	t.primed = false
	t.lastPoll = time.Time{}
	t.lastErr = ""
	t.mu.Unlock()
}

func ackKey(id backend.ID) string {
	return strconv.FormatInt(int64(id), 10)
}

// Acknowledged reports whether id is currently masked.
func (t *Tracker) Acknowledged(id backend.ID) bool {
	_, ok := t.acked.Get(ackKey(id))
	return ok
}

// Poll fetches the active alerts and replaces the local list, minus the
// locally acknowledged ones.
func (t *Tracker) Poll(ctx context.Context) error {
	t.mu.RLock()
	gen := t.gen
	t.mu.RUnlock()

	list, err := t.api.List(ctx)
	if err != nil {
		t.pollFailed.Inc(1)
		t.mu.Lock()
		if t.gen == gen {
			t.lastErr = "Failed to load alerts"
		}
		t.mu.Unlock()
		return fmt.Errorf("poll alerts: %w", err)
	}

	visible := make([]backend.Alert, 0, len(list))
	for _, a := range list {
		if a.IsResolved || t.Acknowledged(a.ID) {
			continue
		}
		visible = append(visible, a)
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return nil
	}
	var fresh []backend.Alert
	states := make(map[backend.ID]State, len(visible))
	for _, a := range visible {
		if st, ok := t.states[a.ID]; ok && st == StateAcknowledging {
			states[a.ID] = st
		} else {
			states[a.ID] = StateVisible
		}
		if IsCritical(a.AlertType) {
			if _, seen := t.notified[a.ID]; !seen {
				t.notified[a.ID] = struct{}{}
				if t.primed {
					fresh = append(fresh, a)
				}
			}
		}
	}
	t.active = visible
	t.states = states
	t.primed = true
	t.lastPoll = t.now()
	t.lastErr = ""
	snapshot := append([]backend.Alert{}, visible...)
	listeners := append([]func([]backend.Alert){}, t.listeners...)
	t.mu.Unlock()

	if t.dispatcher != nil {
		for _, a := range fresh {
			t.dispatcher.Dispatch(a)
		}
	}
	for _, fn := range listeners {
		fn(snapshot)
	}
	return nil
}

// Acknowledge moves an alert through ACKNOWLEDGING to ACKNOWLEDGED. On
// success it leaves the active list at once and stays masked for the TTL; on
// failure it returns to VISIBLE and the error is reported. There is no retry.
func (t *Tracker) Acknowledge(ctx context.Context, id backend.ID) error {
	t.mu.Lock()
	if t.states[id] == StateAcknowledging {
		t.mu.Unlock()
		return ErrAcknowledgeInProgress
	}
	t.states[id] = StateAcknowledging
	gen := t.gen
	t.mu.Unlock()

	if err := t.api.Acknowledge(ctx, id); err != nil {
		t.mu.Lock()
		if t.gen == gen {
			t.states[id] = StateVisible
			t.lastErr = "Failed to acknowledge alert: " + err.Error()
		}
		t.mu.Unlock()
		return fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return nil
	}
	t.acked.SetDefault(ackKey(id), struct{}{})
	t.ackCount.Inc(1)
	t.states[id] = StateAcknowledged
	remaining := make([]backend.Alert, 0, len(t.active))
	for _, a := range t.active {
		if a.ID != id {
			remaining = append(remaining, a)
		}
	}
	t.active = remaining
	snapshot := append([]backend.Alert{}, remaining...)
	listeners := append([]func([]backend.Alert){}, t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return nil
}

// State returns the lifecycle state of id. Unknown alerts are VISIBLE.
func (t *Tracker) State(id backend.ID) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if st, ok := t.states[id]; ok {
		return st
	}
	if t.Acknowledged(id) {
		return StateAcknowledged
	}
	return StateVisible
}

// Active returns the visible alerts passing f.
func (t *Tracker) Active(f Filter) []backend.Alert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Apply(t.active, f, t.now())
}

// Counts returns the number of visible alerts per filter.
func (t *Tracker) Counts() map[Filter]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.now()
	counts := make(map[Filter]int, len(Filters))
	for _, f := range Filters {
		counts[f] = len(Apply(t.active, f, now))
	}
	return counts
}

// ForMachine returns the visible alerts of one machine.
func (t *Tracker) ForMachine(id backend.ID) []backend.Alert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := []backend.Alert{}
	for _, a := range t.active {
		if a.MachineID == id {
			out = append(out, a)
		}
	}
	return out
}

// Error returns the last user-facing error, empty when healthy.
func (t *Tracker) Error() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// LastPoll returns the time of the last successful poll.
func (t *Tracker) LastPoll() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastPoll
}

package datasync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"golang.org/x/sync/singleflight"

	"coffee-fleet-console/config"
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/poller"
	"coffee-fleet-console/internal/session"
	"coffee-fleet-console/internal/store"
)

var (
	// ErrAllSourcesFailed is returned by FetchAll when machines, facilities and
	// usage all failed to load.
	ErrAllSourcesFailed = errors.New("failed to fetch data from all sources")
	// ErrSuperseded is returned when a fetch finished after the session it was
	// started for had ended. Its results are discarded.
	ErrSuperseded = errors.New("fetch superseded by logout")
)

// MachineService is the subset of the machines API the store uses.
type MachineService interface {
	List(ctx context.Context) ([]backend.Machine, error)
	UpdateStatus(ctx context.Context, id backend.ID, status backend.MachineStatus) error
	Refill(ctx context.Context, id backend.ID, levels backend.Levels) error
}

// FacilityLister lists facilities.
type FacilityLister interface {
	List(ctx context.Context) ([]backend.Facility, error)
}

// UsageService is the subset of the usage API the store uses.
type UsageService interface {
	List(ctx context.Context) ([]backend.UsageRecord, error)
	ListToday(ctx context.Context) ([]backend.UsageRecord, error)
}

// Snapshot is a consistent copy of the synchronized cache.
type Snapshot struct {
	Machines     []backend.Machine     `json:"machines"`
	Facilities   []backend.Facility    `json:"facilities"`
	UsageHistory []backend.UsageRecord `json:"usageHistory"`
	TodayUsage   TodayUsage            `json:"todayUsage"`
	LastUpdate   time.Time             `json:"lastUpdate"`
	Loading      bool                  `json:"loading"`
	Error        string                `json:"error,omitempty"`
}

// Store keeps machines, facilities and usage history in sync with the backend.
// It is the only writer of the cache; views read copies through the getters.
type Store struct {
	machines   MachineService
	facilities FacilityLister
	usage      UsageService
	kv         store.Store
	cfg        config.SyncConfig
	now        func() time.Time

	group singleflight.Group
	loop  *poller.Loop

	fetchTimer   metrics.Timer
	fetchOK      metrics.Counter
	fetchPartial metrics.Counter
	fetchFailed  metrics.Counter
	fetchDropped metrics.Counter
	machineGauge metrics.Gauge

	mu        sync.RWMutex
	gen       uint64
	epoch     uint64
	seq       uint64
	committed uint64
	base      context.Context
	cancel    context.CancelFunc
	state     Snapshot
	listeners []func(Snapshot)
}

// roundTimeout bounds one round of backend requests.
const roundTimeout = time.Minute

// NewStore creates a synchronization store. A nil registry disables metrics.
func NewStore(machines MachineService, facilities FacilityLister, usage UsageService, kv store.Store, cfg config.SyncConfig, registry metrics.Registry) *Store {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	s := &Store{
		machines:     machines,
		facilities:   facilities,
		usage:        usage,
		kv:           kv,
		cfg:          cfg,
		now:          time.Now,
		fetchTimer:   metrics.GetOrRegisterTimer("sync.fetch.duration", registry),
		fetchOK:      metrics.GetOrRegisterCounter("sync.fetch.ok", registry),
		fetchPartial: metrics.GetOrRegisterCounter("sync.fetch.partial", registry),
		fetchFailed:  metrics.GetOrRegisterCounter("sync.fetch.failed", registry),
		fetchDropped: metrics.GetOrRegisterCounter("sync.fetch.dropped", registry),
		machineGauge: metrics.GetOrRegisterGauge("sync.machines", registry),
		state:        emptySnapshot(),
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	s.loop = poller.New("data sync", cfg.InitialDelay, func(ctx context.Context) {
		if err := s.FetchAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Background data sync failed: %v", err)
		}
	})
	return s
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Machines:     []backend.Machine{},
		Facilities:   []backend.Facility{},
		UsageHistory: []backend.UsageRecord{},
	}
}

// OnCommit registers fn to receive every committed snapshot.
func (s *Store) OnCommit(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Interval returns the refresh interval for role.
func (s *Store) Interval(role session.Role) time.Duration {
	if role == session.RoleAdmin {
		return s.cfg.AdminInterval
	}
	return s.cfg.OperatorInterval
}

// Start begins automatic refreshes for a session of the given role. Calling
// Start again replaces the running loop.
func (s *Store) Start(ctx context.Context, role session.Role) {
	s.loop.Start(ctx, s.Interval(role))
}

// Stop halts automatic refreshes.
func (s *Store) Stop() {
	s.loop.Stop()
}

// Running reports whether automatic refreshes are active.
func (s *Store) Running() bool {
	return s.loop.Running()
}

// Reset stops refreshing, cancels fetches in flight and empties the cache.
// Fetches that still finish are discarded.
func (s *Store) Reset() {
	s.loop.Stop()

	s.mu.Lock()
	s.cancel()
	s.base, s.cancel = context.WithCancel(context.Background())
	s.gen++
	s.state = emptySnapshot()
	s.mu.Unlock()
}

// FetchAll loads machines, facilities and usage history concurrently. A
// collection whose fetch fails keeps its previous value; only when all three
// fail is the error state set.
//
// Concurrent calls share one round of requests. The round runs on the store's
// own context: cancelling ctx only stops this caller from waiting.
func (s *Store) FetchAll(ctx context.Context) error {
	s.mu.RLock()
	gen, epoch := s.gen, s.epoch
	s.mu.RUnlock()

	key := strconv.FormatUint(gen, 10) + ":" + strconv.FormatUint(epoch, 10)
	ch := s.group.DoChan(key, func() (any, error) {
		return nil, s.runRound(gen)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refetch starts a new round instead of joining one already in flight, whose
// requests may predate a mutation.
func (s *Store) refetch(ctx context.Context) error {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
	return s.FetchAll(ctx)
}

func (s *Store) runRound(gen uint64) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	ctx, cancel := context.WithTimeout(s.base, roundTimeout)
	s.mu.Unlock()
	defer cancel()

	return s.fetchAll(ctx, gen, seq)
}

type fetchResult struct {
	machines    []backend.Machine
	machinesErr error

	facilities    []backend.Facility
	facilitiesErr error

	usage    []backend.UsageRecord
	usageErr error

	today    []backend.UsageRecord
	todayErr error
}

// fetchAll runs round seq of session generation gen. A round that finishes
// after a later round has committed is dropped.
func (s *Store) fetchAll(ctx context.Context, gen, seq uint64) error {
	start := time.Now()
	defer s.fetchTimer.UpdateSince(start)

	s.setLoading(gen, true)

	var res fetchResult
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		res.machines, res.machinesErr = s.machines.List(ctx)
	}()
	go func() {
		defer wg.Done()
		res.facilities, res.facilitiesErr = s.facilities.List(ctx)
	}()
	go func() {
		defer wg.Done()
		res.usage, res.usageErr = s.usage.List(ctx)
	}()
	go func() {
		defer wg.Done()
		res.today, res.todayErr = s.usage.ListToday(ctx)
	}()
	wg.Wait()

	if res.machinesErr != nil {
		log.Printf("Failed to fetch machines: %v", res.machinesErr)
	}
	if res.facilitiesErr != nil {
		log.Printf("Failed to fetch facilities: %v", res.facilitiesErr)
	}
	if res.usageErr != nil {
		log.Printf("Failed to fetch usage history: %v", res.usageErr)
	}
	if res.todayErr != nil {
		log.Printf("Failed to fetch today's usage: %v", res.todayErr)
	}

	if res.machinesErr != nil && res.facilitiesErr != nil && res.usageErr != nil {
		s.fetchFailed.Inc(1)
		s.mu.Lock()
		if s.gen == gen && seq > s.committed {
			s.state.Loading = false
			s.state.Error = "Failed to fetch data from all sources"
		}
		s.mu.Unlock()
		return ErrAllSourcesFailed
	}

	history := res.usage
	if res.usageErr != nil {
		history = s.UsageHistory()
	}
	now := s.now()
	today, generated := s.resolveTodayUsage(ctx, now, res.today, res.todayErr, history)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.fetchDropped.Inc(1)
		log.Printf("Discarding fetch results from an ended session.")
		return ErrSuperseded
	}
	if seq < s.committed {
		s.mu.Unlock()
		s.fetchDropped.Inc(1)
		log.Printf("Discarding results of fetch round %d, round %d is newer.", seq, s.committed)
		return nil
	}
	s.committed = seq
	if res.machinesErr == nil {
		s.state.Machines = nonNil(res.machines)
	}
	if res.facilitiesErr == nil {
		s.state.Facilities = nonNil(res.facilities)
	}
	if res.usageErr == nil {
		s.state.UsageHistory = nonNil(res.usage)
	}
	s.state.TodayUsage = today
	s.state.LastUpdate = now
	s.state.Loading = false
	s.state.Error = ""
	snap := s.copyStateLocked()
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()

	if res.machinesErr != nil || res.facilitiesErr != nil || res.usageErr != nil {
		s.fetchPartial.Inc(1)
	} else {
		s.fetchOK.Inc(1)
	}
	s.machineGauge.Update(int64(len(snap.Machines)))
	if generated {
		s.saveSimulated(ctx, now, today.Count)
	}

	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

func (s *Store) setLoading(gen uint64, loading bool) {
	s.mu.Lock()
	if s.gen == gen {
		s.state.Loading = loading
	}
	s.mu.Unlock()
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	s.state.Error = msg
	s.mu.Unlock()
}

// UpdateMachineStatus switches a machine on or off and then refreshes the
// whole cache. Failures are recorded in the error state.
func (s *Store) UpdateMachineStatus(ctx context.Context, id backend.ID, status backend.MachineStatus) bool {
	if err := s.machines.UpdateStatus(ctx, id, status); err != nil {
		log.Printf("Status update for machine %d failed: %v", id, err)
		s.setError(fmt.Sprintf("Failed to update machine status: %v", err))
		return false
	}
	s.refreshAfterMutation(ctx)
	return true
}

// RefillMachine submits new supply levels, clamped to 0..100, and then
// refreshes the whole cache.
func (s *Store) RefillMachine(ctx context.Context, id backend.ID, levels backend.Levels) bool {
	if err := s.machines.Refill(ctx, id, levels.Clamped()); err != nil {
		log.Printf("Refill of machine %d failed: %v", id, err)
		s.setError(fmt.Sprintf("Failed to refill machine: %v", err))
		return false
	}
	s.refreshAfterMutation(ctx)
	return true
}

func (s *Store) refreshAfterMutation(ctx context.Context) {
	if err := s.refetch(ctx); err != nil {
		log.Printf("Refresh after mutation failed: %v", err)
	}
}

// Error returns the current error state, empty when healthy.
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Error
}

// ClearError resets the error state.
func (s *Store) ClearError() {
	s.setError("")
}

func (s *Store) copyStateLocked() Snapshot {
	snap := s.state
	snap.Machines = append([]backend.Machine{}, s.state.Machines...)
	snap.Facilities = append([]backend.Facility{}, s.state.Facilities...)
	snap.UsageHistory = append([]backend.UsageRecord{}, s.state.UsageHistory...)
	return snap
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

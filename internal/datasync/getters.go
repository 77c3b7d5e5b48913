package datasync

import (
	"time"

	"coffee-fleet-console/internal/backend"
)

// DashboardStats is the summary shown on the dashboard tiles.
type DashboardStats struct {
	TotalMachines     int        `json:"totalMachines"`
	ActiveMachines    int        `json:"activeMachines"`
	TotalFacilities   int        `json:"totalFacilities"`
	TotalUsage        int        `json:"totalUsage"`
	TodayUsage        TodayUsage `json:"todayUsage"`
	LowSupplyMachines int        `json:"lowSupplyMachines"`
	LastUpdate        time.Time  `json:"lastUpdate"`
}

// Snapshot returns a copy of the whole cache.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyStateLocked()
}

// Machines returns the cached machines.
func (s *Store) Machines() []backend.Machine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]backend.Machine{}, s.state.Machines...)
}

// Facilities returns the cached facilities.
func (s *Store) Facilities() []backend.Facility {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]backend.Facility{}, s.state.Facilities...)
}

// UsageHistory returns the cached usage records.
func (s *Store) UsageHistory() []backend.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]backend.UsageRecord{}, s.state.UsageHistory...)
}

// TodayUsage returns the last resolved today's-usage figure.
func (s *Store) TodayUsage() TodayUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TodayUsage
}

// LastUpdate returns the time of the last committed fetch.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastUpdate
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

// DashboardStats summarizes the cache.
func (s *Store) DashboardStats() DashboardStats {
	return StatsOf(s.Snapshot())
}

// StatsOf computes dashboard statistics from a snapshot.
func StatsOf(snap Snapshot) DashboardStats {
	return DashboardStats{
		TotalMachines:     len(snap.Machines),
		ActiveMachines:    countActive(snap.Machines),
		TotalFacilities:   len(snap.Facilities),
		TotalUsage:        len(snap.UsageHistory),
		TodayUsage:        snap.TodayUsage,
		LowSupplyMachines: len(lowSupply(snap.Machines)),
		LastUpdate:        snap.LastUpdate,
	}
}

// MachineByID looks a machine up in the cache.
func (s *Store) MachineByID(id backend.ID) (backend.Machine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.state.Machines {
		if m.ID == id {
			return m, true
		}
	}
	return backend.Machine{}, false
}

// FacilityByID looks a facility up in the cache.
func (s *Store) FacilityByID(id backend.ID) (backend.Facility, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.state.Facilities {
		if f.ID == id {
			return f, true
		}
	}
	return backend.Facility{}, false
}

// MachinesByFacility returns the machines installed at a facility.
func (s *Store) MachinesByFacility(facilityID backend.ID) []backend.Machine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return machinesOf(s.state.Machines, facilityID)
}

// MachinesByStatus returns machines in the given power state.
func (s *Store) MachinesByStatus(status backend.MachineStatus) []backend.Machine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []backend.Machine{}
	for _, m := range s.state.Machines {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

// UsageCountForMachine counts cached usage records of one machine.
func (s *Store) UsageCountForMachine(machineID backend.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.state.UsageHistory {
		if u.MachineID == machineID {
			n++
		}
	}
	return n
}

// TotalUsageCount is the number of cached usage records.
func (s *Store) TotalUsageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.UsageHistory)
}

// TodayUsageFromHistory counts cached records on the current local day.
func (s *Store) TodayUsageFromHistory() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CountInDay(s.state.UsageHistory, s.now())
}

// ActiveMachinesCount counts machines that are switched on and active.
func (s *Store) ActiveMachinesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countActive(s.state.Machines)
}

// LowSupplyMachines returns machines flagged with low supplies.
func (s *Store) LowSupplyMachines() []backend.Machine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lowSupply(s.state.Machines)
}

// UsageForFacility returns the facility's machines and the usage records of
// exactly those machines.
func (s *Store) UsageForFacility(facilityID backend.ID) ([]backend.Machine, []backend.UsageRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterByFacility(s.state.Machines, s.state.UsageHistory, facilityID)
}

// FilterByFacility keeps the machines of facilityID and the usage records
// whose machine belongs to it.
func FilterByFacility(machines []backend.Machine, usage []backend.UsageRecord, facilityID backend.ID) ([]backend.Machine, []backend.UsageRecord) {
	own := machinesOf(machines, facilityID)
	ids := make(map[backend.ID]struct{}, len(own))
	for _, m := range own {
		ids[m.ID] = struct{}{}
	}
	records := []backend.UsageRecord{}
	for _, u := range usage {
		if _, ok := ids[u.MachineID]; ok {
			records = append(records, u)
		}
	}
	return own, records
}

func machinesOf(machines []backend.Machine, facilityID backend.ID) []backend.Machine {
	out := []backend.Machine{}
	for _, m := range machines {
		if m.FacilityID == facilityID {
			out = append(out, m)
		}
	}
	return out
}

func countActive(machines []backend.Machine) int {
	n := 0
	for _, m := range machines {
		if m.Status == backend.StatusOn && m.IsActive {
			n++
		}
	}
	return n
}

func lowSupply(machines []backend.Machine) []backend.Machine {
	out := []backend.Machine{}
	for _, m := range machines {
		if m.HasLowSupplies {
			out = append(out, m)
		}
	}
	return out
}

// ForFacility narrows the snapshot to one facility. Today's usage is counted
// from the facility's own history since the backend's figure is fleet-wide.
func (snap Snapshot) ForFacility(facilityID backend.ID, now time.Time) Snapshot {
	out := snap
	out.Machines, out.UsageHistory = FilterByFacility(snap.Machines, snap.UsageHistory, facilityID)
	out.Facilities = []backend.Facility{}
	for _, f := range snap.Facilities {
		if f.ID == facilityID {
			out.Facilities = append(out.Facilities, f)
		}
	}
	out.TodayUsage = TodayUsage{Count: CountInDay(out.UsageHistory, now), Source: SourceHistory}
	return out
}

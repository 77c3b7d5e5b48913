package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is a backend identifier. Some endpoints send ids as strings, so both forms
// are accepted.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", s, err)
		}
		*id = ID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n)
	return nil
}

// String formats the id for URL paths.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a decimal id from a path parameter.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(n), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a backend date-time. Zone-less values are read as local time.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		// null, numbers and malformed values leave the zero time.
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// MachineStatus is the power state of a machine.
type MachineStatus string

const (
	StatusOn  MachineStatus = "ON"
	StatusOff MachineStatus = "OFF"
)

// ParseMachineStatus accepts ON/OFF in any case.
func ParseMachineStatus(s string) (MachineStatus, error) {
	switch MachineStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusOn:
		return StatusOn, nil
	case StatusOff:
		return StatusOff, nil
	}
	return "", fmt.Errorf("invalid machine status %q", s)
}

// Machine is a coffee machine as reported by the backend.
type Machine struct {
	ID               ID            `json:"id"`
	Name             string        `json:"name,omitempty"`
	FacilityID       ID            `json:"facilityId"`
	FacilityName     string        `json:"facilityName,omitempty"`
	FacilityLocation string        `json:"facilityLocation,omitempty"`
	Status           MachineStatus `json:"status"`
	IsActive         bool          `json:"isActive"`
	IsOperational    bool          `json:"isOperational"`
	HasLowSupplies   bool          `json:"hasLowSupplies"`
	HasLowWater      bool          `json:"hasLowWater"`
	HasLowMilk       bool          `json:"hasLowMilk"`
	HasLowBeans      bool          `json:"hasLowBeans"`
	WaterLevel       float64       `json:"waterLevel"`
	MilkLevel        float64       `json:"milkLevel"`
	BeansLevel       float64       `json:"beansLevel"`
	SugarLevel       float64       `json:"sugarLevel"`
	Temperature      float64       `json:"temperature"`
	ActiveAlertCount int64         `json:"activeAlertCount"`
	TotalUsageCount  int64         `json:"totalUsageCount"`
	TodayUsageCount  int64         `json:"todayUsageCount"`
	LastUpdate       Timestamp     `json:"lastUpdate"`
}

// Facility is a site hosting machines.
type Facility struct {
	ID                      ID        `json:"id"`
	Name                    string    `json:"name"`
	Location                string    `json:"location"`
	IsActive                bool      `json:"isActive"`
	TotalMachines           int64     `json:"totalMachines"`
	ActiveMachines          int64     `json:"activeMachines"`
	OperationalMachines     int64     `json:"operationalMachines"`
	MachinesWithLowSupplies int64     `json:"machinesWithLowSupplies"`
	CreationDate            Timestamp `json:"creationDate"`
	Machines                []Machine `json:"machines,omitempty"`
}

// UsageRecord is one brew.
type UsageRecord struct {
	ID                  ID        `json:"id"`
	MachineID           ID        `json:"machineId"`
	UserID              ID        `json:"userId"`
	Timestamp           Timestamp `json:"timestamp"`
	BrewType            string    `json:"brewType"`
	MachineFacilityID   ID        `json:"machineFacilityId,omitempty"`
	MachineFacilityName string    `json:"machineFacilityName,omitempty"`
	UserName            string    `json:"userName,omitempty"`
}

// Alert is a machine alert.
type Alert struct {
	ID                ID        `json:"id"`
	MachineID         ID        `json:"machineId"`
	AlertType         string    `json:"alertType"`
	Message           string    `json:"message"`
	Timestamp         Timestamp `json:"timestamp"`
	IsResolved        bool      `json:"isResolved"`
	Severity          string    `json:"severity,omitempty"`
	Category          string    `json:"category,omitempty"`
	MachineFacilityID ID        `json:"machineFacilityId,omitempty"`
}

// User is a console account as listed by the admin users view.
type User struct {
	ID           ID        `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"isActive"`
	FacilityID   ID        `json:"facilityId,omitempty"`
	CreationDate Timestamp `json:"creationDate"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the backend's answer to a successful login.
type LoginResponse struct {
	JWT          string `json:"jwt"`
	UserID       ID     `json:"userId"`
	Role         string `json:"role"`
	FacilityID   ID     `json:"facilityId,omitempty"`
	FacilityName string `json:"facilityName,omitempty"`
}

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	FacilityID *ID    `json:"facilityId,omitempty"`
}

// DashboardSummary is the backend's own aggregate, when it offers one.
type DashboardSummary struct {
	TotalFacilities     int64            `json:"totalFacilities"`
	TotalMachines       int64            `json:"totalMachines"`
	ActiveMachines      int64            `json:"activeMachines"`
	OperationalMachines int64            `json:"operationalMachines"`
	TotalAlerts         int64            `json:"totalAlerts"`
	CriticalAlerts      int64            `json:"criticalAlerts"`
	TotalUsageToday     int64            `json:"totalUsageToday"`
	UsageByBrewType     map[string]int64 `json:"usageByBrewType,omitempty"`
}

package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Window is one period's time range, half-open [Start, End), local time.
type Window struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`
}

type ScheduleVariant map[string]Window

// School is the building-wide configuration: schedule variants keyed by
// name, capacity numbers, and the list of station rooms. Read-mostly;
// reloaded only through Provider.Reload.
type School struct {
	SchoolName       string                     `json:"school_name"`
	ActiveSchedule   string                     `json:"active_schedule"`
	ScheduleVariants map[string]ScheduleVariant `json:"schedule_variants"`
	PassesAvailable  int                        `json:"passes_available"`
	StationSlots     int                        `json:"station_slots"`
	Stations         []string                   `json:"stations"`
	ReportThresholds ReportThresholds           `json:"report_time_thresholds"`
}

// ReportThresholds are the long-pass cutoffs (seconds) used by the weekly
// summary.
type ReportThresholds struct {
	Over5  int `json:"over_5"`
	Over10 int `json:"over_10"`
}

// ActiveVariant returns the period table for the active schedule. Missing
// variants resolve to an empty table rather than an error so a bad name
// degrades to "no periods" instead of failing every request.
func (s *School) ActiveVariant() ScheduleVariant {
	if s == nil || s.ScheduleVariants == nil {
		return nil
	}
	return s.ScheduleVariants[s.ActiveSchedule]
}

func (s *School) IsStationName(name string) bool {
	for _, station := range s.Stations {
		if station == name {
			return true
		}
	}
	return false
}

// LoadSchool reads and validates the school config file. Malformed period
// windows are dropped with a warning; only a structurally unusable file is
// an error.
func LoadSchool(path string) (*School, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read school config: %w", err)
	}
	var school School
	if err := json.Unmarshal(raw, &school); err != nil {
		return nil, fmt.Errorf("parse school config: %w", err)
	}
	if school.ActiveSchedule == "" {
		school.ActiveSchedule = "regular"
	}
	if school.PassesAvailable <= 0 {
		school.PassesAvailable = 3
	}
	if school.StationSlots <= 0 {
		school.StationSlots = 3
	}
	if school.ReportThresholds.Over5 <= 0 {
		school.ReportThresholds.Over5 = 300
	}
	if school.ReportThresholds.Over10 <= 0 {
		school.ReportThresholds.Over10 = 600
	}
	for variant, table := range school.ScheduleVariants {
		for period, window := range table {
			if _, err := ParseClock(window.Start); err != nil {
				log.Printf("school config: skipping %s period %s: bad start %q", variant, period, window.Start)
				delete(table, period)
				continue
			}
			if _, err := ParseClock(window.End); err != nil {
				log.Printf("school config: skipping %s period %s: bad end %q", variant, period, window.End)
				delete(table, period)
			}
		}
	}
	if _, ok := school.ScheduleVariants[school.ActiveSchedule]; !ok {
		log.Printf("school config: active schedule %q has no variant table", school.ActiveSchedule)
	}
	return &school, nil
}

// ParseClock parses an "HH:MM" wall-clock value into minutes since
// midnight.
func ParseClock(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// Provider holds the current school config and supports explicit reload.
type Provider struct {
	path string

	mu     sync.RWMutex
	school *School
}

func NewProvider(path string) (*Provider, error) {
	school, err := LoadSchool(path)
	if err != nil {
		return nil, err
	}
	return &Provider{path: path, school: school}, nil
}

// NewStaticProvider wraps an in-memory config; used by tests.
func NewStaticProvider(school *School) *Provider {
	return &Provider{school: school}
}

func (p *Provider) School() *School {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.school
}

func (p *Provider) Reload() error {
	if p.path == "" {
		return nil
	}
	school, err := LoadSchool(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.school = school
	p.mu.Unlock()
	return nil
}

// Package schedule resolves wall-clock time to active class periods.
package schedule

import (
	"log"
	"sort"
	"time"

	"github.com/tjms-tools/hallpass/internal/config"
)

// NoPeriod is the sentinel used where callers need a single period value
// and nothing is in session.
const NoPeriod = "0"

// CurrentPeriods returns every period in the variant whose [start, end)
// window contains now's time of day. Periods may overlap; the result is
// sorted for stable output. A malformed window is skipped with a warning
// rather than failing the whole table.
func CurrentPeriods(now time.Time, variant config.ScheduleVariant) []string {
	minute := now.Hour()*60 + now.Minute()
	matches := []string{}
	for period, window := range variant {
		start, err := config.ParseClock(window.Start)
		if err != nil {
			log.Printf("schedule: skipping period %s: bad start %q", period, window.Start)
			continue
		}
		end, err := config.ParseClock(window.End)
		if err != nil {
			log.Printf("schedule: skipping period %s: bad end %q", period, window.End)
			continue
		}
		if minute >= start && minute < end {
			matches = append(matches, period)
		}
	}
	sort.Strings(matches)
	return matches
}

// Primary picks the period used when one value is required, falling back
// to the NoPeriod sentinel.
func Primary(periods []string) string {
	if len(periods) == 0 {
		return NoPeriod
	}
	return periods[0]
}

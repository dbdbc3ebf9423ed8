package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/livinlefevreloca/p2g/internal/cadence"
	"github.com/livinlefevreloca/p2g/internal/orchestrator"
)

// DailyCallLimit is the Pingdom API quota
const DailyCallLimit = 48000

// Advice estimates the daily API calls of running update on a schedule.
// Every pass lists the catalog twice and makes one call per monitored entity.
type Advice struct {
	Monitored    int
	Schedule     string
	RunsPerDay   int
	CallsPerPass int
	DailyCalls   int
}

// NewAdvice computes the estimate for monitored entities run on schedule
// during the day containing now
func NewAdvice(monitored int, schedule *cadence.Schedule, now time.Time) Advice {
	runs := schedule.RunsPerDay(now)
	calls := 2 + monitored
	return Advice{
		Monitored:    monitored,
		Schedule:     schedule.String(),
		RunsPerDay:   runs,
		CallsPerPass: calls,
		DailyCalls:   runs * calls,
	}
}

// Fits reports whether the estimate stays under the daily limit
func (a Advice) Fits() bool {
	return a.DailyCalls < DailyCallLimit
}

func printReport(r *orchestrator.Report) {
	writeReport(os.Stdout, r)
}

func writeReport(w io.Writer, r *orchestrator.Report) {
	fmt.Fprintf(w, "run %s: %d metrics sent to Graphite, %d checkpoints committed (%d fetched, %d skipped)\n",
		r.RunID, r.Delivered, r.Committed, r.Fetched, r.Skipped)
	if r.Malformed > 0 {
		fmt.Fprintf(w, "%d malformed records dropped\n", r.Malformed)
	}
	if len(r.FailedEntities) == 0 {
		return
	}

	failed := make([]string, len(r.FailedEntities))
	for i, k := range r.FailedEntities {
		failed[i] = k.String()
	}
	fmt.Fprintf(w, "%d entities failed: %s\n", len(failed), strings.Join(failed, ", "))
}

// Package progress reports the stages of a sync pass to the operator.
//
// Implementations include:
//   - CLIEmitter: pretty-printed terminal output using pterm
//   - Nop: discards everything, used by tests and non-interactive runs
package progress

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pterm/pterm"
)

// Emitter receives progress events from the orchestrator. EmitProgress may be
// called from fetch workers concurrently.
type Emitter interface {
	EmitStage(stage string, message string)
	EmitProgress(stage string, done, total int)
	EmitComplete(summary map[string]any)
	EmitError(stage string, err error)
}

// CLIEmitter outputs progress to the terminal using pterm
type CLIEmitter struct {
	verbosity int

	mu       sync.Mutex
	reported map[string]int
}

// NewCLIEmitter creates a CLI progress emitter
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{
		verbosity: verbosity,
		reported:  make(map[string]int),
	}
}

// EmitStage prints a stage announcement
func (e *CLIEmitter) EmitStage(stage string, message string) {
	pterm.Printf("%s: %s\n", pterm.LightCyan(stage), message)
}

// EmitProgress prints a counter at every tenth of the total, or on every
// unit when verbose
func (e *CLIEmitter) EmitProgress(stage string, done, total int) {
	e.mu.Lock()
	last := e.reported[stage]
	report := e.verbosity >= 2 || shouldReport(done, total, last)
	if report {
		e.reported[stage] = done
	}
	e.mu.Unlock()

	if report {
		pterm.Printf("  %s %s/%d\n", stage, pterm.Green(fmt.Sprintf("%d", done)), total)
	}
}

// shouldReport is true when done crosses the next 10% step after last, and
// always for the final unit
func shouldReport(done, total, last int) bool {
	if total <= 0 || done <= last {
		return false
	}
	if done >= total {
		return true
	}
	step := total / 10
	if step < 1 {
		step = 1
	}
	return done/step > last/step
}

// EmitComplete prints the completion summary
func (e *CLIEmitter) EmitComplete(summary map[string]any) {
	pterm.Success.Println("Sync complete")
	if e.verbosity < 1 {
		return
	}

	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pterm.Printf("  %s: %v\n", k, summary[k])
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Error.Printf("Error in %s: %v\n", stage, err)
}

// Nop discards all events
type Nop struct{}

func (Nop) EmitStage(string, string) {}
func (Nop) EmitProgress(string, int, int) {}
func (Nop) EmitComplete(map[string]any) {}
func (Nop) EmitError(string, error) {}

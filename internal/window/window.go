// Package window computes the time range requested from the provider for one
// category of one entity.
package window

import (
	"time"

	"github.com/livinlefevreloca/p2g/internal/model"
)

// DefaultMaxHorizon bounds how far back any fetch may reach (~32 days)
const DefaultMaxHorizon = 2764770 * time.Second

// recentThreshold is the provider's aggregation granularity for categories
// flagged SkipRecent
const recentThreshold = time.Hour

// Resolve returns the window for the next fetch.
//
// A checkpoint that was never fetched starts spec.Lookback before now. The start
// is always clamped to now-maxHorizon. For categories flagged SkipRecent, a start
// more recent than one hour ago yields a skipped window.
func Resolve(cp model.Checkpoint, spec model.CategorySpec, now time.Time, maxHorizon time.Duration) model.Window {
	if maxHorizon <= 0 {
		maxHorizon = DefaultMaxHorizon
	}

	var from int64
	if cp.LatestSeen != nil {
		from = *cp.LatestSeen
	} else {
		from = now.Add(-spec.Lookback).Unix()
	}

	if floor := now.Add(-maxHorizon).Unix(); from < floor {
		from = floor
	}

	w := model.Window{From: from}
	if spec.SkipRecent && from > now.Add(-recentThreshold).Unix() {
		w.Skip = true
	}
	return w
}

// Package normalize turns provider-shaped results into a uniform stream of
// metric points and computes the watermark advance for each batch.
package normalize

import (
	"fmt"

	"github.com/livinlefevreloca/p2g/internal/model"
)

// Promote copies each record's category-specific time field into Time.
// Records without a usable timestamp are dropped; the second return value
// counts them.
func Promote(cat model.Category, raw []model.RawResult) ([]model.RawResult, int) {
	field := cat.Spec().TimeField
	out := make([]model.RawResult, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		ts, ok := r.Int(field)
		if !ok {
			dropped++
			continue
		}
		r.Time = ts
		out = append(out, r)
	}
	return out, dropped
}

// Filter promotes timestamps, drops records strictly inside the already
// delivered band of prior, and returns the surviving records in input order
// together with the widened checkpoint.
//
// A record survives when _time >= latestSeen or _time <= earliestSeen. A nil
// latestSeen keeps every record; a nil earliestSeen matches nothing. For
// interval categories the latest bound covers the end of the last interval,
// and an interval whose end reaches latestSeen also survives so a state that
// is still ongoing keeps being re-anchored on every pass.
func Filter(cat model.Category, prior model.Checkpoint, raw []model.RawResult) model.Batch {
	spec := cat.Spec()
	promoted, malformed := Promote(cat, raw)

	kept := make([]model.RawResult, 0, len(promoted))
	for _, r := range promoted {
		if isNew(r, spec.EndField, prior) {
			kept = append(kept, r)
		}
	}

	cp := prior
	if len(kept) > 0 {
		latest, earliest := bounds(kept, spec.EndField)
		if prior.LatestSeen != nil && *prior.LatestSeen > latest {
			latest = *prior.LatestSeen
		}
		if prior.EarliestSeen != nil && *prior.EarliestSeen < earliest {
			earliest = *prior.EarliestSeen
		}
		cp = model.Checkpoint{LatestSeen: &latest, EarliestSeen: &earliest}
	}

	return model.Batch{
		Checkpoint: cp,
		Results:    kept,
		Malformed:  malformed,
	}
}

func isNew(r model.RawResult, endField string, cp model.Checkpoint) bool {
	if cp.LatestSeen == nil || r.Time >= *cp.LatestSeen {
		return true
	}
	if endField != "" {
		if to, ok := r.Int(endField); ok && to >= *cp.LatestSeen {
			return true
		}
	}
	return cp.EarliestSeen != nil && r.Time <= *cp.EarliestSeen
}

func bounds(results []model.RawResult, endField string) (latest, earliest int64) {
	latest, earliest = results[0].Time, results[0].Time
	for _, r := range results {
		end := r.Time
		if endField != "" {
			if to, ok := r.Int(endField); ok && to > end {
				end = to
			}
		}
		if end > latest {
			latest = end
		}
		if r.Time < earliest {
			earliest = r.Time
		}
	}
	return latest, earliest
}

// Points converts a filtered batch into metric points for the entity.
// probes qualifies raw results with the probe's country and city.
func Points(entity model.Entity, cat model.Category, batch model.Batch, probes map[int64]model.Probe) []model.MetricPoint {
	if len(batch.Results) == 0 {
		return nil
	}

	segment := cat.Spec().PathSegment
	var points []model.MetricPoint

	switch cat {
	case model.CategoryResults:
		for _, r := range batch.Results {
			country, city := probeLocation(r, probes)
			points = append(points, model.MetricPoint{
				Path:      Path(entity.Kind, segment, entity.Name, "status", country, city),
				Value:     upValue(r.String("status")),
				Timestamp: r.Time,
			})
			if rt, ok := r.Float("responsetime"); ok {
				points = append(points, model.MetricPoint{
					Path:      Path(entity.Kind, segment, entity.Name, "responsetime", country, city),
					Value:     rt,
					Timestamp: r.Time,
				})
			}
		}

	case model.CategoryOutage:
		path := Path(entity.Kind, segment, entity.Name, "status", entity.Group)
		for _, r := range AnchorOutages(batch.Results) {
			points = append(points, model.MetricPoint{
				Path:      path,
				Value:     upValue(r.String("status")),
				Timestamp: r.Time,
			})
		}

	case model.CategoryPerformance:
		path := Path(entity.Kind, segment, entity.Name, "avgresponse", entity.Group)
		for _, r := range batch.Results {
			avg, ok := r.Float("avgresponse")
			if !ok {
				continue
			}
			points = append(points, model.MetricPoint{
				Path:      path,
				Value:     avg,
				Timestamp: r.Time,
			})
		}
	}

	return points
}

// AnchorOutages prepends a copy of the interval with the greatest timeto,
// re-timestamped to that timeto, so the series always reaches the end of the
// last known state. The input slice is not modified.
func AnchorOutages(results []model.RawResult) []model.RawResult {
	if len(results) == 0 {
		return nil
	}

	last := -1
	var lastTo int64
	for i, r := range results {
		to, ok := r.Int("timeto")
		if !ok {
			continue
		}
		if last == -1 || to > lastTo {
			last, lastTo = i, to
		}
	}

	out := make([]model.RawResult, 0, len(results)+1)
	if last >= 0 {
		anchor := results[last].Clone()
		anchor.Time = lastTo
		out = append(out, anchor)
	}
	return append(out, results...)
}

func upValue(status string) float64 {
	if status == "up" {
		return 1
	}
	return 0
}

func probeLocation(r model.RawResult, probes map[int64]model.Probe) (country, city string) {
	id, ok := r.Int("probeid")
	if !ok {
		return "unknown", "unknown"
	}
	p, ok := probes[id]
	if !ok {
		return "unknown", fmt.Sprintf("probe %d", id)
	}
	return p.CountryISO, p.City
}

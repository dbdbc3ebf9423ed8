package manifest

import (
	"sort"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/model"
)

// Document is the on-disk JSON manifest
type Document struct {
	Checks map[int64]*CheckEntry `json:"checks"`
	TMs    map[int64]*TMEntry    `json:"tms"`
	Probes map[int64]model.Probe `json:"probes"`
}

// CheckInfo describes an uptime check
type CheckInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Hostname string `json:"hostname,omitempty"`
}

// CheckEntry holds one check and its three watermark pairs
type CheckEntry struct {
	Infos            CheckInfo `json:"infos"`
	LatestTS         *int64    `json:"latest_ts,omitempty"`
	EarliestTS       *int64    `json:"earliest_ts,omitempty"`
	OutageLatestTS   *int64    `json:"outage_latest_ts,omitempty"`
	OutageEarliestTS *int64    `json:"outage_earliest_ts,omitempty"`
	PerfLatestTS     *int64    `json:"perf_latest_ts,omitempty"`
	PerfEarliestTS   *int64    `json:"perf_earliest_ts,omitempty"`
}

// TMInfo describes a transaction monitor; kitchen is its group
type TMInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Kitchen string `json:"kitchen,omitempty"`
}

// TMEntry holds one transaction monitor and its watermark pairs
type TMEntry struct {
	Infos            TMInfo `json:"infos"`
	OutageLatestTS   *int64 `json:"outage_latest_ts,omitempty"`
	OutageEarliestTS *int64 `json:"outage_earliest_ts,omitempty"`
	PerfLatestTS     *int64 `json:"perf_latest_ts,omitempty"`
	PerfEarliestTS   *int64 `json:"perf_earliest_ts,omitempty"`
}

// NewDocument returns an empty document
func NewDocument() *Document {
	return &Document{
		Checks: make(map[int64]*CheckEntry),
		TMs:    make(map[int64]*TMEntry),
		Probes: make(map[int64]model.Probe),
	}
}

// normalize fills missing maps and entries and repairs ids from map keys.
// It returns the number of watermark pairs discarded as invalid.
func (d *Document) normalize() int {
	if d.Checks == nil {
		d.Checks = make(map[int64]*CheckEntry)
	}
	if d.TMs == nil {
		d.TMs = make(map[int64]*TMEntry)
	}
	if d.Probes == nil {
		d.Probes = make(map[int64]model.Probe)
	}

	discarded := 0
	for id, e := range d.Checks {
		if e == nil {
			e = &CheckEntry{}
			d.Checks[id] = e
		}
		e.Infos.ID = id
		discarded += resetInverted(&e.EarliestTS, &e.LatestTS)
		discarded += resetInverted(&e.OutageEarliestTS, &e.OutageLatestTS)
		discarded += resetInverted(&e.PerfEarliestTS, &e.PerfLatestTS)
	}
	for id, e := range d.TMs {
		if e == nil {
			e = &TMEntry{}
			d.TMs[id] = e
		}
		e.Infos.ID = id
		discarded += resetInverted(&e.OutageEarliestTS, &e.OutageLatestTS)
		discarded += resetInverted(&e.PerfEarliestTS, &e.PerfLatestTS)
	}
	for id, p := range d.Probes {
		p.ID = id
		d.Probes[id] = p
	}
	return discarded
}

func resetInverted(earliest, latest **int64) int {
	if *earliest != nil && *latest != nil && **earliest > **latest {
		*earliest, *latest = nil, nil
		return 1
	}
	return 0
}

// Entities returns the catalog ordered by kind then id
func (d *Document) Entities() []model.Entity {
	entities := make([]model.Entity, 0, len(d.Checks)+len(d.TMs))
	for _, id := range sortedKeys(d.Checks) {
		info := d.Checks[id].Infos
		entities = append(entities, model.Entity{
			Kind:     model.KindCheck,
			ID:       id,
			Name:     info.Name,
			Hostname: info.Hostname,
		})
	}
	for _, id := range sortedKeys(d.TMs) {
		info := d.TMs[id].Infos
		entities = append(entities, model.Entity{
			Kind:  model.KindTransaction,
			ID:    id,
			Name:  info.Name,
			Group: info.Kitchen,
		})
	}
	return entities
}

// ProbeList returns the probes ordered by id
func (d *Document) ProbeList() []model.Probe {
	probes := make([]model.Probe, 0, len(d.Probes))
	for _, id := range sortedKeys(d.Probes) {
		probes = append(probes, d.Probes[id])
	}
	return probes
}

// Checkpoints extracts every non-empty watermark pair
func (d *Document) Checkpoints() checkpoint.Map {
	m := make(checkpoint.Map)
	put := func(key model.EntityKey, cat model.Category, latest, earliest *int64) {
		cp := model.Checkpoint{LatestSeen: latest, EarliestSeen: earliest}
		if !cp.IsZero() {
			m[checkpoint.Key{Entity: key, Category: cat}] = cp
		}
	}

	for id, e := range d.Checks {
		key := model.EntityKey{Kind: model.KindCheck, ID: id}
		put(key, model.CategoryResults, e.LatestTS, e.EarliestTS)
		put(key, model.CategoryOutage, e.OutageLatestTS, e.OutageEarliestTS)
		put(key, model.CategoryPerformance, e.PerfLatestTS, e.PerfEarliestTS)
	}
	for id, e := range d.TMs {
		key := model.EntityKey{Kind: model.KindTransaction, ID: id}
		put(key, model.CategoryOutage, e.OutageLatestTS, e.OutageEarliestTS)
		put(key, model.CategoryPerformance, e.PerfLatestTS, e.PerfEarliestTS)
	}
	return m
}

// SetCheckpoints overwrites every watermark pair from cps. Entries absent
// from cps are cleared; keys for unknown entities are ignored.
func (d *Document) SetCheckpoints(cps checkpoint.Map) {
	get := func(kind model.EntityKind, id int64, cat model.Category) (*int64, *int64) {
		cp := cps[checkpoint.Key{Entity: model.EntityKey{Kind: kind, ID: id}, Category: cat}]
		return cp.LatestSeen, cp.EarliestSeen
	}

	for id, e := range d.Checks {
		e.LatestTS, e.EarliestTS = get(model.KindCheck, id, model.CategoryResults)
		e.OutageLatestTS, e.OutageEarliestTS = get(model.KindCheck, id, model.CategoryOutage)
		e.PerfLatestTS, e.PerfEarliestTS = get(model.KindCheck, id, model.CategoryPerformance)
	}
	for id, e := range d.TMs {
		e.OutageLatestTS, e.OutageEarliestTS = get(model.KindTransaction, id, model.CategoryOutage)
		e.PerfLatestTS, e.PerfEarliestTS = get(model.KindTransaction, id, model.CategoryPerformance)
	}
}

// SetCatalog rebuilds the entity maps from entities, carrying over the
// watermarks of ids that survive, and replaces the probes.
func (d *Document) SetCatalog(entities []model.Entity, probes []model.Probe) {
	checks := make(map[int64]*CheckEntry)
	tms := make(map[int64]*TMEntry)

	for _, e := range entities {
		switch e.Kind {
		case model.KindCheck:
			entry := d.Checks[e.ID]
			if entry == nil {
				entry = &CheckEntry{}
			}
			entry.Infos = CheckInfo{ID: e.ID, Name: e.Name, Hostname: e.Hostname}
			checks[e.ID] = entry
		case model.KindTransaction:
			entry := d.TMs[e.ID]
			if entry == nil {
				entry = &TMEntry{}
			}
			entry.Infos = TMInfo{ID: e.ID, Name: e.Name, Kitchen: e.Group}
			tms[e.ID] = entry
		}
	}

	d.Checks = checks
	d.TMs = tms
	d.Probes = make(map[int64]model.Probe, len(probes))
	for _, p := range probes {
		d.Probes[p.ID] = p
	}
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

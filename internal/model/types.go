package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EntityKind distinguishes uptime checks from transaction monitors
type EntityKind int

const (
	KindCheck EntityKind = iota
	KindTransaction
)

// String returns the identifier used in logs and persisted state
func (k EntityKind) String() string {
	switch k {
	case KindCheck:
		return "check"
	case KindTransaction:
		return "tm"
	default:
		return "unknown"
	}
}

// ParseEntityKind is the inverse of String
func ParseEntityKind(s string) (EntityKind, bool) {
	switch s {
	case "check":
		return KindCheck, true
	case "tm":
		return KindTransaction, true
	default:
		return 0, false
	}
}

// PathPrefix returns the first segment of every metric path for this kind
func (k EntityKind) PathPrefix() string {
	switch k {
	case KindCheck:
		return "checks"
	case KindTransaction:
		return "tms"
	default:
		return "unknown"
	}
}

// Categories returns the checkpoint axes tracked for this kind.
// Transaction monitors have no raw per-probe result stream.
func (k EntityKind) Categories() []Category {
	if k == KindTransaction {
		return []Category{CategoryOutage, CategoryPerformance}
	}
	return []Category{CategoryResults, CategoryOutage, CategoryPerformance}
}

// EntityKey identifies an entity across both id namespaces
type EntityKey struct {
	Kind EntityKind
	ID   int64
}

func (k EntityKey) String() string {
	return k.Kind.String() + ":" + strconv.FormatInt(k.ID, 10)
}

// Entity is a monitored check or transaction monitor.
// Status and LastResponseTime are only populated by live provider listings.
type Entity struct {
	Kind             EntityKind
	ID               int64
	Name             string
	Hostname         string
	Group            string
	Status           string
	LastResponseTime int64
}

// Key returns the entity's checkpoint key
func (e Entity) Key() EntityKey {
	return EntityKey{Kind: e.Kind, ID: e.ID}
}

// Probe is a provider probe location used to qualify raw result paths
type Probe struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	City       string `json:"city"`
	CountryISO string `json:"countryiso"`
	Region     string `json:"region"`
}

// Checkpoint is the delivered-history watermark for one entity and category.
// A nil bound means the axis has never been fetched.
type Checkpoint struct {
	LatestSeen   *int64
	EarliestSeen *int64
}

// IsZero reports whether the checkpoint is in the bootstrap state
func (c Checkpoint) IsZero() bool {
	return c.LatestSeen == nil && c.EarliestSeen == nil
}

// Valid reports whether earliest <= latest when both bounds are set
func (c Checkpoint) Valid() bool {
	if c.LatestSeen == nil || c.EarliestSeen == nil {
		return true
	}
	return *c.EarliestSeen <= *c.LatestSeen
}

// Equal compares two checkpoints by value
func (c Checkpoint) Equal(o Checkpoint) bool {
	return eqPtr(c.LatestSeen, o.LatestSeen) && eqPtr(c.EarliestSeen, o.EarliestSeen)
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("[%s, %s]", fmtPtr(c.EarliestSeen), fmtPtr(c.LatestSeen))
}

// NewCheckpoint builds a checkpoint from concrete bounds
func NewCheckpoint(earliest, latest int64) Checkpoint {
	return Checkpoint{LatestSeen: &latest, EarliestSeen: &earliest}
}

func eqPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtPtr(p *int64) string {
	if p == nil {
		return "null"
	}
	return strconv.FormatInt(*p, 10)
}

// Window is the range requested from the provider for one fetch.
// The upper bound is always "now" and is never sent.
type Window struct {
	From int64
	Skip bool
}

// RawResult is one provider record. Time holds the canonical _time once promoted.
type RawResult struct {
	Time   int64
	Fields map[string]any
}

// Clone returns a copy that does not share the field map
func (r RawResult) Clone() RawResult {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return RawResult{Time: r.Time, Fields: fields}
}

// Int returns the field as an integer
func (r RawResult) Int(key string) (int64, bool) {
	switch v := r.Fields[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Float returns the field as a float
func (r RawResult) Float(key string) (float64, bool) {
	switch v := r.Fields[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

// String returns the field as a string, or "" when absent
func (r RawResult) String(key string) string {
	switch v := r.Fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// MetricPoint is the only artifact delivered to the sink
type MetricPoint struct {
	Path      string
	Value     float64
	Timestamp int64
}

// Batch is the transient outcome of one fetch+filter pass for an entity and category
type Batch struct {
	Checkpoint Checkpoint
	Results    []RawResult
	Skipped    bool

	// Records dropped because they carried no usable timestamp
	Malformed int
}

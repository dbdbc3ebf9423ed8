package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/model"
)

// FetchCall records one provider fetch
type FetchCall struct {
	Entity   model.EntityKey
	Category model.Category
	Since    int64
}

// FakeProvider serves canned results and catalog listings
type FakeProvider struct {
	mu           sync.Mutex
	checks       []model.Entity
	transactions []model.Entity
	probes       []model.Probe
	results      map[checkpoint.Key][]model.RawResult
	errs         map[model.EntityKey]error
	listErr      error
	delay        time.Duration
	calls        []FetchCall

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		results: make(map[checkpoint.Key][]model.RawResult),
		errs:    make(map[model.EntityKey]error),
	}
}

// SetCatalog sets the listings returned by ListChecks, ListTransactions and ListProbes
func (p *FakeProvider) SetCatalog(checks, transactions []model.Entity, probes []model.Probe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks = checks
	p.transactions = transactions
	p.probes = probes
}

// SetResults sets the records available for an entity and category
func (p *FakeProvider) SetResults(key model.EntityKey, cat model.Category, results []model.RawResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[checkpoint.Key{Entity: key, Category: cat}] = results
}

// AppendResults adds newer records for an entity and category
func (p *FakeProvider) AppendResults(key model.EntityKey, cat model.Category, results ...model.RawResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := checkpoint.Key{Entity: key, Category: cat}
	p.results[k] = append(p.results[k], results...)
}

// FailEntity makes every fetch for the entity return err
func (p *FakeProvider) FailEntity(key model.EntityKey, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[key] = err
}

func (p *FakeProvider) SetListError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = err
}

func (p *FakeProvider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

func (p *FakeProvider) ListChecks(ctx context.Context) ([]model.Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checks, p.listErr
}

func (p *FakeProvider) ListTransactions(ctx context.Context) ([]model.Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transactions, p.listErr
}

func (p *FakeProvider) ListProbes(ctx context.Context) ([]model.Probe, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes, p.listErr
}

// Fetch returns copies of the stored records whose category time field is at
// or after since, the way the provider honours its "from" parameter. Interval
// records that are still open at since are returned as well.
func (p *FakeProvider) Fetch(ctx context.Context, kind model.EntityKind, cat model.Category, id int64, since int64) ([]model.RawResult, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		cur := p.maxInFlight.Load()
		if n <= cur || p.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	key := model.EntityKey{Kind: kind, ID: id}

	p.mu.Lock()
	p.calls = append(p.calls, FetchCall{Entity: key, Category: cat, Since: since})
	delay := p.delay
	err := p.errs[key]
	stored := p.results[checkpoint.Key{Entity: key, Category: cat}]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	spec := cat.Spec()
	out := make([]model.RawResult, 0, len(stored))
	for _, r := range stored {
		if ts, ok := r.Int(spec.TimeField); ok && ts < since {
			if to, ok := r.Int(spec.EndField); !ok || to < since {
				continue
			}
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

// Calls returns every recorded fetch
func (p *FakeProvider) Calls() []FetchCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]FetchCall, len(p.calls))
	copy(result, p.calls)
	return result
}

// MaxInFlight returns the highest observed number of concurrent fetches
func (p *FakeProvider) MaxInFlight() int {
	return int(p.maxInFlight.Load())
}

// FakeSink records published points. FailWith decides the outcome of each
// publish from the points it receives.
type FakeSink struct {
	mu        sync.Mutex
	points    []model.MetricPoint
	publishes int
	failWith  func(points []model.MetricPoint) error
}

func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// FailWith installs a failure hook; a nil hook accepts everything
func (s *FakeSink) FailWith(fn func(points []model.MetricPoint) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = fn
}

func (s *FakeSink) Publish(ctx context.Context, points []model.MetricPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publishes++
	if s.failWith != nil {
		if err := s.failWith(points); err != nil {
			return err
		}
	}
	s.points = append(s.points, points...)
	return nil
}

// Points returns every accepted point in publish order
func (s *FakeSink) Points() []model.MetricPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]model.MetricPoint, len(s.points))
	copy(result, s.points)
	return result
}

// Publishes counts Publish calls, accepted or not
func (s *FakeSink) Publishes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishes
}

// MemoryManifest is an in-memory manifest store
type MemoryManifest struct {
	mu          sync.Mutex
	entities    []model.Entity
	probes      []model.Probe
	checkpoints checkpoint.Map
	saves       int
	catalogs    int
	saveErr     error
}

func NewMemoryManifest() *MemoryManifest {
	return &MemoryManifest{checkpoints: make(checkpoint.Map)}
}

// Seed sets the catalog and checkpoints without counting as a save
func (m *MemoryManifest) Seed(entities []model.Entity, probes []model.Probe, cps checkpoint.Map) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = entities
	m.probes = probes
	m.checkpoints = copyMap(cps)
}

func (m *MemoryManifest) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

func (m *MemoryManifest) LoadEntities(ctx context.Context) ([]model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Entity(nil), m.entities...), nil
}

func (m *MemoryManifest) LoadProbes(ctx context.Context) ([]model.Probe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Probe(nil), m.probes...), nil
}

func (m *MemoryManifest) LoadCheckpoints(ctx context.Context) (checkpoint.Map, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyMap(m.checkpoints), nil
}

func (m *MemoryManifest) SaveCheckpoints(ctx context.Context, cps checkpoint.Map) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.checkpoints = copyMap(cps)
	return nil
}

// SaveCatalog keeps checkpoints of surviving entities only
func (m *MemoryManifest) SaveCatalog(ctx context.Context, entities []model.Entity, probes []model.Probe) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.catalogs++
	m.entities = append([]model.Entity(nil), entities...)
	m.probes = append([]model.Probe(nil), probes...)

	alive := make(map[model.EntityKey]bool, len(entities))
	for _, e := range entities {
		alive[e.Key()] = true
	}
	for k := range m.checkpoints {
		if !alive[k.Entity] {
			delete(m.checkpoints, k)
		}
	}
	return nil
}

func (m *MemoryManifest) Close() error {
	return nil
}

// Checkpoint returns the stored checkpoint for an entity and category
func (m *MemoryManifest) Checkpoint(key model.EntityKey, cat model.Category) model.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoints[checkpoint.Key{Entity: key, Category: cat}]
}

// Saves counts successful SaveCheckpoints calls
func (m *MemoryManifest) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// CatalogSaves counts SaveCatalog calls
func (m *MemoryManifest) CatalogSaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalogs
}

func copyMap(m checkpoint.Map) checkpoint.Map {
	out := make(checkpoint.Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

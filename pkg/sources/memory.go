package sources

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HatiCode/qosmetric/pkg/curves"
)

// Kind tells inventory curves from consumption profiles.
type Kind int

const (
	Inventory Kind = iota
	Consumption
)

func (k Kind) String() string {
	if k == Consumption {
		return "consumption"
	}
	return "inventory"
}

// MemoryRepository serves curves held in memory. It is safe for concurrent
// use and is mostly useful in tests and local runs.
type MemoryRepository struct {
	mu     sync.RWMutex
	curves map[memoryKey][]curves.Curve
}

type memoryKey struct {
	kind     Kind
	location string
	week     string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{curves: make(map[memoryKey][]curves.Curve)}
}

// Add registers c for location under the week of c.WeekStart.
func (m *MemoryRepository) Add(kind Kind, location string, c curves.Curve) {
	k := memoryKey{kind: kind, location: location, week: c.WeekStart.Format(time.DateOnly)}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.curves[k], c)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Product < list[j].Product
	})
	m.curves[k] = list
}

// GetInventoryCurves implements curves.Repository.
func (m *MemoryRepository) GetInventoryCurves(ctx context.Context, location string, weekStart time.Time) ([]curves.Curve, error) {
	return m.get(ctx, Inventory, location, weekStart)
}

// GetConsumptionCurves implements curves.Repository.
func (m *MemoryRepository) GetConsumptionCurves(ctx context.Context, location string, weekStart time.Time) ([]curves.Curve, error) {
	return m.get(ctx, Consumption, location, weekStart)
}

// Ping reports the context state only.
func (m *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryRepository) get(ctx context.Context, kind Kind, location string, weekStart time.Time) ([]curves.Curve, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.curves[memoryKey{kind: kind, location: location, week: weekStart.Format(time.DateOnly)}]
	out := make([]curves.Curve, len(list))
	copy(out, list)
	return out, nil
}

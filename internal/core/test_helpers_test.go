package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sampletrack/internal/infra/persistence/sqlite"
	"sampletrack/internal/infra/persistence/sqlstore"
	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

// stepClock advances one second per reading so every transaction gets a
// distinct timestamp.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type backend struct {
	name string
	open func(t *testing.T, opts ...Option) *Service
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T, opts ...Option) *Service {
			t.Helper()
			return NewInMemoryService(NewDefaultRulesEngine(), append([]Option{WithClock(newStepClock())}, opts...)...)
		}},
		{name: "sqlite", open: func(t *testing.T, opts ...Option) *Service {
			t.Helper()
			clock := newStepClock()
			store, err := sqlite.NewStore(context.Background(), filepath.Join(t.TempDir(), "engine.db"), NewDefaultRulesEngine(), sqlstore.WithClock(clock.Now))
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			return NewService(store, append([]Option{WithClock(clock)}, opts...)...)
		}},
	}
}

// forEachBackend runs fn once per storage backend with a fresh service.
func forEachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Helper()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newFixture(t, b.open(t)))
		})
	}
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	svc     *Service
	bench   Location
	freezer Location
}

func newFixture(t *testing.T, svc *Service) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), svc: svc}
	f.bench = f.location("Bench 4")
	f.freezer = f.location("Freezer -80")
	return f
}

func (f *fixture) location(name string) Location {
	f.t.Helper()
	loc, _, err := f.svc.CreateLocation(f.ctx, Location{Name: name})
	if err != nil {
		f.t.Fatalf("create location %s: %v", name, err)
	}
	return loc
}

func (f *fixture) register(barcode, amount string) RegisterItemResult {
	f.t.Helper()
	out, res, err := f.svc.RegisterItem(f.ctx, RegisterItemRequest{
		Description: "serum " + barcode,
		Barcode:     barcode,
		Unit:        "mL",
		OwnerID:     "lab-7",
		Amount:      dec(amount),
		LocationID:  f.bench.ID,
	})
	if err != nil {
		f.t.Fatalf("register %s: %v", barcode, err)
	}
	if res.HasBlocking() {
		f.t.Fatalf("register %s blocked: %+v", barcode, res.Violations)
	}
	return out
}

// container creates an untyped container on the bench. An empty capacity
// leaves it unbounded.
func (f *fixture) container(capacity string) Container {
	f.t.Helper()
	c := Container{Name: "rack", LocationID: f.bench.ID}
	if capacity != "" {
		c.Capacity = amountRef(dec(capacity))
	}
	created, _, err := f.svc.CreateContainer(f.ctx, c)
	if err != nil {
		f.t.Fatalf("create container: %v", err)
	}
	return created
}

func (f *fixture) test(number string) Test {
	f.t.Helper()
	test, _, err := f.svc.CreateTest(f.ctx, Test{Number: number, Name: "assay " + number})
	if err != nil {
		f.t.Fatalf("create test %s: %v", number, err)
	}
	return test
}

func (f *fixture) inventory(itemID string) Inventory {
	f.t.Helper()
	inv, err := f.svc.ItemInventory(f.ctx, itemID)
	if err != nil {
		f.t.Fatalf("item inventory %s: %v", itemID, err)
	}
	return inv
}

func (f *fixture) occupancy(containerID string) Occupancy {
	f.t.Helper()
	occ, err := f.svc.ContainerOccupancy(f.ctx, containerID)
	if err != nil {
		f.t.Fatalf("occupancy %s: %v", containerID, err)
	}
	return occ
}

func (f *fixture) record(id string) StorageRecord {
	f.t.Helper()
	var rec StorageRecord
	if err := f.svc.Store().View(f.ctx, func(r Reader) error {
		var err error
		rec, err = r.GetStorageRecord(id)
		return err
	}); err != nil {
		f.t.Fatalf("get record %s: %v", id, err)
	}
	return rec
}

// requireConserved checks the quantity balance of one item and runs a full
// verification pass over the store.
func (f *fixture) requireConserved(itemID string) Inventory {
	f.t.Helper()
	inv := f.inventory(itemID)
	if got := inv.TotalRemaining.Add(inv.TotalOutstanding); !got.Equal(inv.Item.TotalAmount) {
		f.t.Fatalf("item %s: remaining %s + outstanding %s != total %s",
			inv.Item.Barcode, inv.TotalRemaining, inv.TotalOutstanding, inv.Item.TotalAmount)
	}
	res, err := f.svc.VerifyInventory(f.ctx)
	if err != nil {
		f.t.Fatalf("verify inventory: %v", err)
	}
	if len(res.Violations) != 0 {
		f.t.Fatalf("verify inventory violations: %+v", res.Violations)
	}
	return inv
}

func requireDecimal(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: got %s want %s", what, got, want)
	}
}

func requireCode(t *testing.T, err error, want domain.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := domain.CodeOf(err); got != want {
		t.Fatalf("expected %s error, got %s: %v", want, got, err)
	}
}

func asInsufficient(t *testing.T, err error) *domain.InsufficientQuantityError {
	t.Helper()
	var target *domain.InsufficientQuantityError
	if !errors.As(err, &target) {
		t.Fatalf("expected InsufficientQuantityError, got %T: %v", err, err)
	}
	return target
}

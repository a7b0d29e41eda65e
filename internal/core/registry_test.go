package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"sampletrack/pkg/domain"
)

func TestContainerTypeCapacityInheritance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		plate, _, err := f.svc.CreateContainerType(f.ctx, ContainerType{Name: "96-well plate"})
		if err != nil {
			t.Fatalf("create type: %v", err)
		}
		requireDecimal(t, "default capacity", plate.DefaultCapacity, "100")

		rack, _, err := f.svc.CreateContainerType(f.ctx, ContainerType{Name: "Rack", DefaultCapacity: dec("24")})
		if err != nil {
			t.Fatalf("create rack type: %v", err)
		}
		inherited, _, err := f.svc.CreateContainer(f.ctx, Container{LocationID: f.bench.ID, TypeID: &rack.ID})
		if err != nil {
			t.Fatalf("create typed container: %v", err)
		}
		if inherited.Capacity == nil {
			t.Fatalf("typed container should inherit a capacity")
		}
		requireDecimal(t, "inherited capacity", *inherited.Capacity, "24")

		explicit, _, err := f.svc.CreateContainer(f.ctx, Container{LocationID: f.bench.ID, TypeID: &rack.ID, Capacity: amountRef(dec("6"))})
		if err != nil {
			t.Fatalf("create container with explicit capacity: %v", err)
		}
		requireDecimal(t, "explicit capacity", *explicit.Capacity, "6")

		if _, _, err := f.svc.CreateContainerType(f.ctx, ContainerType{Name: "Rack"}); err == nil {
			t.Fatalf("expected duplicate type name conflict")
		} else {
			requireCode(t, err, domain.CodeConflict)
		}
		if _, _, err := f.svc.CreateContainerType(f.ctx, ContainerType{Name: "Bad", DefaultCapacity: dec("-1")}); err == nil {
			t.Fatalf("expected negative default capacity to fail")
		} else {
			requireCode(t, err, domain.CodeInvalidArgument)
		}
		if _, _, err := f.svc.CreateContainer(f.ctx, Container{LocationID: f.bench.ID, Capacity: amountRef(dec("0"))}); err == nil {
			t.Fatalf("expected zero capacity to fail")
		} else {
			requireCode(t, err, domain.CodeInvalidArgument)
		}

		_, err = f.svc.DeleteContainerType(f.ctx, rack.ID)
		var dependents *domain.HasDependentsError
		if !errors.As(err, &dependents) || dependents.Dependents[EntityContainer] != 2 {
			t.Fatalf("expected 2 container dependents, got %v", err)
		}
		if _, err := f.svc.DeleteContainerType(f.ctx, plate.ID); err != nil {
			t.Fatalf("delete unused type: %v", err)
		}
	})
}

func TestContainerBarcodeGeneration(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		first := f.container("")
		if first.Barcode != "CNT-000001" {
			t.Fatalf("first barcode: got %s want CNT-000001", first.Barcode)
		}
		if _, _, err := f.svc.CreateContainer(f.ctx, Container{Barcode: "CNT-000003", LocationID: f.bench.ID}); err != nil {
			t.Fatalf("create with explicit barcode: %v", err)
		}
		// Two containers exist, so CNT-000003 is probed first and skipped.
		third := f.container("")
		if third.Barcode != "CNT-000004" {
			t.Fatalf("third barcode: got %s want CNT-000004", third.Barcode)
		}
		if _, _, err := f.svc.CreateContainer(f.ctx, Container{Barcode: "CNT-000001", LocationID: f.bench.ID}); err == nil {
			t.Fatalf("expected duplicate barcode conflict")
		} else {
			requireCode(t, err, domain.CodeConflict)
		}
		if _, _, err := f.svc.CreateContainer(f.ctx, Container{LocationID: "nowhere"}); err == nil {
			t.Fatalf("expected unknown location to fail")
		} else {
			requireCode(t, err, domain.CodeNotFound)
		}
	})
}

func TestContainerBarcodeFallsBackToTimestamp(t *testing.T) {
	svc := NewInMemoryService(NewRulesEngine(), WithClock(newStepClock()))
	f := newFixture(t, svc)
	// With n containers every probe from n+1 to n+maxContainerProbes is taken.
	for i := 1; i <= maxContainerProbes; i++ {
		barcode := fmt.Sprintf("CNT-%06d", maxContainerProbes+i)
		if _, _, err := svc.CreateContainer(f.ctx, Container{Barcode: barcode, LocationID: f.bench.ID}); err != nil {
			t.Fatalf("seed container %s: %v", barcode, err)
		}
	}
	c := f.container("")
	if !strings.HasPrefix(c.Barcode, "CNT-") || !strings.Contains(c.Barcode, ".") {
		t.Fatalf("expected timestamp fallback barcode, got %s", c.Barcode)
	}
}

func TestDeleteLocationAndContainerDependents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-200", "3")
		y := f.container("5")
		if _, _, err := f.svc.MoveToContainer(f.ctx, x.Record.ID, y.ID, dec("3"), false); err != nil {
			t.Fatalf("move: %v", err)
		}

		_, err := f.svc.DeleteLocation(f.ctx, f.bench.ID)
		var dependents *domain.HasDependentsError
		if !errors.As(err, &dependents) {
			t.Fatalf("expected has dependents, got %v", err)
		}
		if dependents.Dependents[EntityStorageRecord] != 1 || dependents.Dependents[EntityContainer] != 1 {
			t.Fatalf("unexpected dependents: %+v", dependents.Dependents)
		}

		_, err = f.svc.DeleteContainer(f.ctx, y.ID)
		requireCode(t, err, domain.CodeHasDependents)

		if _, _, err := f.svc.MoveToLocation(f.ctx, x.Record.ID, f.freezer.ID, dec("3")); err != nil {
			t.Fatalf("move out: %v", err)
		}
		if _, err := f.svc.DeleteContainer(f.ctx, y.ID); err != nil {
			t.Fatalf("delete empty container: %v", err)
		}
		if _, err := f.svc.DeleteLocation(f.ctx, f.bench.ID); err != nil {
			t.Fatalf("delete empty location: %v", err)
		}
		if _, err := f.svc.DeleteLocation(f.ctx, f.bench.ID); err == nil {
			t.Fatalf("expected deleted location to be gone")
		} else {
			requireCode(t, err, domain.CodeNotFound)
		}
		if _, _, err := f.svc.CreateLocation(f.ctx, Location{Name: "Freezer -80"}); err == nil {
			t.Fatalf("expected duplicate location name conflict")
		} else {
			requireCode(t, err, domain.CodeConflict)
		}
	})
}

func TestDeleteItemDependents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-201", "4")
		_, err := f.svc.DeleteItem(f.ctx, x.Item.ID)
		requireCode(t, err, domain.CodeHasDependents)

		split, _, err := f.svc.MoveToLocation(f.ctx, x.Record.ID, f.freezer.ID, dec("1"))
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		if _, _, err := f.svc.Dispose(f.ctx, x.Record.ID, dec("3"), ""); err != nil {
			t.Fatalf("dispose parent: %v", err)
		}
		_, err = f.svc.DeleteItem(f.ctx, x.Item.ID)
		var dependents *domain.HasDependentsError
		if !errors.As(err, &dependents) || dependents.Dependents[EntityItem] != 1 {
			t.Fatalf("expected split child dependent, got %v", err)
		}

		child := split.SplitItem.ID
		if _, _, err := f.svc.Dispose(f.ctx, split.Record.ID, dec("1"), ""); err != nil {
			t.Fatalf("dispose child: %v", err)
		}
		if _, err := f.svc.DeleteItem(f.ctx, child); err != nil {
			t.Fatalf("delete disposed child: %v", err)
		}
		if _, err := f.svc.DeleteItem(f.ctx, x.Item.ID); err != nil {
			t.Fatalf("delete disposed parent: %v", err)
		}
		if _, err := f.svc.ItemInventory(f.ctx, x.Item.ID); err == nil {
			t.Fatalf("expected deleted item to be gone")
		} else {
			requireCode(t, err, domain.CodeNotFound)
		}

		y := f.register("SER-202", "2")
		alloc, _, err := f.svc.Allocate(f.ctx, y.Item.ID, f.test("T-202").ID, dec("2"), "")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if _, _, err := f.svc.Complete(f.ctx, alloc.ID, dec("2"), dec("0"), ""); err != nil {
			t.Fatalf("complete: %v", err)
		}
		_, err = f.svc.DeleteItem(f.ctx, y.Item.ID)
		if !errors.As(err, &dependents) || dependents.Dependents[EntityTestAllocation] != 1 {
			t.Fatalf("allocations should keep the item, got %v", err)
		}
	})
}

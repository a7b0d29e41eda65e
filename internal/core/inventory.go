package core

import (
	"context"

	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

// Placement is a storage record with its container link, if any.
type Placement struct {
	Record StorageRecord
	Link   *ContainerLink
}

// Inventory is the quantity picture of one item.
type Inventory struct {
	Item           Item
	Placements     []Placement
	Outstanding    []TestAllocation
	TotalRemaining decimal.Decimal
	// TotalOutstanding is the quantity currently held by tests.
	TotalOutstanding decimal.Decimal
}

// FamilyInventory aggregates an item with every item split from it,
// transitively.
type FamilyInventory struct {
	Root             Item
	Members          []Inventory
	RegisteredAmount decimal.Decimal
	TotalAmount      decimal.Decimal
	TotalRemaining   decimal.Decimal
	TotalOutstanding decimal.Decimal
}

// ItemInventory returns the records, links and outstanding allocations of an item.
func (s *Service) ItemInventory(ctx context.Context, itemID string) (Inventory, error) {
	var out Inventory
	err := s.view(ctx, "item_inventory", func(r Reader) error {
		var err error
		out, err = loadInventory(r, itemID)
		return err
	})
	return out, err
}

// FamilyInventory returns the inventory of the lineage itemID belongs to,
// starting at its root item.
func (s *Service) FamilyInventory(ctx context.Context, itemID string) (FamilyInventory, error) {
	var out FamilyInventory
	err := s.view(ctx, "family_inventory", func(r Reader) error {
		root, err := r.GetItem(itemID)
		if err != nil {
			return err
		}
		for root.ParentItemID != nil {
			parent, err := r.GetItem(*root.ParentItemID)
			if err != nil {
				return err
			}
			root = parent
		}
		out = FamilyInventory{
			Root:             root,
			RegisteredAmount: root.RegisteredAmount,
			TotalAmount:      decimal.Zero,
			TotalRemaining:   decimal.Zero,
			TotalOutstanding: decimal.Zero,
		}
		queue := []string{root.ID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			inv, err := loadInventory(r, id)
			if err != nil {
				return err
			}
			out.Members = append(out.Members, inv)
			out.TotalAmount = out.TotalAmount.Add(inv.Item.TotalAmount)
			out.TotalRemaining = out.TotalRemaining.Add(inv.TotalRemaining)
			out.TotalOutstanding = out.TotalOutstanding.Add(inv.TotalOutstanding)
			children, err := r.ListChildItems(id)
			if err != nil {
				return err
			}
			for _, child := range children {
				queue = append(queue, child.ID)
			}
		}
		return nil
	})
	return out, err
}

// VerifyInventory evaluates the invariant rules against every stored item
// and returns all violations found. It writes nothing. A store without
// rules is checked against the default rule set.
func (s *Service) VerifyInventory(ctx context.Context) (Result, error) {
	engine := s.store.RulesEngine()
	if engine == nil || len(engine.Rules()) == 0 {
		engine = NewDefaultRulesEngine()
	}
	var res Result
	err := s.view(ctx, "verify_inventory", func(r Reader) error {
		items, err := r.ListItems()
		if err != nil {
			return err
		}
		changes := make([]Change, 0, len(items))
		for _, item := range items {
			changes = append(changes, Change{Entity: EntityItem, Action: domain.ActionUpdate, After: item})
			records, err := r.ListStorageRecordsByItem(item.ID)
			if err != nil {
				return err
			}
			for _, rec := range records {
				changes = append(changes, Change{Entity: EntityStorageRecord, Action: domain.ActionUpdate, After: rec})
			}
			allocations, err := r.ListAllocationsByItem(item.ID)
			if err != nil {
				return err
			}
			for _, alloc := range allocations {
				changes = append(changes, Change{Entity: EntityTestAllocation, Action: domain.ActionUpdate, After: alloc})
			}
		}
		res, err = engine.Evaluate(ctx, r, changes)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if len(res.Violations) > 0 {
		s.logger.Warn("inventory verification found violations", "count", len(res.Violations))
	}
	return res, nil
}

func loadInventory(r Reader, itemID string) (Inventory, error) {
	item, err := r.GetItem(itemID)
	if err != nil {
		return Inventory{}, err
	}
	records, err := r.ListStorageRecordsByItem(itemID)
	if err != nil {
		return Inventory{}, err
	}
	allocations, err := r.ListAllocationsByItem(itemID)
	if err != nil {
		return Inventory{}, err
	}
	inv := Inventory{Item: item}
	inv.TotalRemaining, inv.TotalOutstanding = sumQuantities(records, allocations)
	for _, rec := range records {
		p := Placement{Record: rec}
		if link, ok, err := r.FindContainerLinkByRecord(rec.ID); err != nil {
			return Inventory{}, err
		} else if ok {
			p.Link = &link
		}
		inv.Placements = append(inv.Placements, p)
	}
	for _, alloc := range allocations {
		if alloc.Status.Outstanding() {
			inv.Outstanding = append(inv.Outstanding, alloc)
		}
	}
	return inv, nil
}

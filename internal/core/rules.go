package core

import (
	"errors"
	"sort"

	"sampletrack/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the quantity invariants
// every engine transaction is checked against before commit.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewConservationRule())
	engine.Register(NewAllocationBoundRule())
	engine.Register(NewContainerLinkBoundRule())
	engine.Register(NewNonNegativeRemainingRule())
	engine.Register(NewItemStatusRule())
	return engine
}

// changeSet indexes the identifiers touched by a transaction.
type changeSet struct {
	items       map[string]struct{}
	records     map[string]struct{}
	deleted     map[string]struct{}
	allocations map[string]struct{}
}

func collectChanges(changes []Change) changeSet {
	cs := changeSet{
		items:       make(map[string]struct{}),
		records:     make(map[string]struct{}),
		deleted:     make(map[string]struct{}),
		allocations: make(map[string]struct{}),
	}
	for _, change := range changes {
		for _, payload := range []any{change.Before, change.After} {
			switch v := payload.(type) {
			case domain.Item:
				cs.items[v.ID] = struct{}{}
			case domain.StorageRecord:
				cs.items[v.ItemID] = struct{}{}
				cs.records[v.ID] = struct{}{}
			case domain.ContainerLink:
				cs.records[v.StorageRecordID] = struct{}{}
			case domain.TestAllocation:
				cs.items[v.ItemID] = struct{}{}
				cs.allocations[v.ID] = struct{}{}
			}
		}
		if change.Entity == domain.EntityStorageRecord && change.Action == domain.ActionDelete {
			if rec, ok := change.Before.(domain.StorageRecord); ok {
				cs.deleted[rec.ID] = struct{}{}
			}
		}
	}
	return cs
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound{})
}

package core

import (
	"context"
	"fmt"

	"sampletrack/pkg/domain"
)

// NewAllocationBoundRule returns the rule keeping used plus returned within
// the allocated amount of every touched allocation.
func NewAllocationBoundRule() domain.Rule {
	return allocationBoundRule{}
}

type allocationBoundRule struct{}

func (allocationBoundRule) Name() string { return "allocation_bound" }

func (r allocationBoundRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, id := range sortedKeys(collectChanges(changes).allocations) {
		alloc, err := view.GetTestAllocation(id)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return domain.Result{}, err
		}
		var msg string
		switch {
		case !alloc.AmountAllocated.IsPositive():
			msg = fmt.Sprintf("allocation %s amount %s must be positive", alloc.Identifier, alloc.AmountAllocated)
		case alloc.AmountUsed.IsNegative() || alloc.AmountReturned.IsNegative():
			msg = fmt.Sprintf("allocation %s has negative used or returned amount", alloc.Identifier)
		case alloc.AmountUsed.Add(alloc.AmountReturned).GreaterThan(alloc.AmountAllocated):
			msg = fmt.Sprintf("allocation %s used %s + returned %s exceeds allocated %s",
				alloc.Identifier, alloc.AmountUsed, alloc.AmountReturned, alloc.AmountAllocated)
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityTestAllocation,
			EntityID: alloc.ID,
		})
	}
	return res, nil
}

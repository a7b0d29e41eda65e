package core

import (
	"context"
	"fmt"

	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

// NewConservationRule returns the rule asserting that an item's stored and
// outstanding quantity add up to its total, and that the total never exceeds
// the registered amount.
func NewConservationRule() domain.Rule {
	return conservationRule{}
}

type conservationRule struct{}

func (conservationRule) Name() string { return "quantity_conservation" }

func (r conservationRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, itemID := range sortedKeys(collectChanges(changes).items) {
		item, err := view.GetItem(itemID)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return domain.Result{}, err
		}
		records, err := view.ListStorageRecordsByItem(itemID)
		if err != nil {
			return domain.Result{}, err
		}
		allocations, err := view.ListAllocationsByItem(itemID)
		if err != nil {
			return domain.Result{}, err
		}
		stored, outstanding := sumQuantities(records, allocations)
		accounted := stored.Add(outstanding)

		if !accounted.Equal(item.TotalAmount) {
			res.Violations = append(res.Violations, r.violation(item,
				fmt.Sprintf("item %s quantity drift: stored %s + outstanding %s != total %s",
					item.Barcode, stored, outstanding, item.TotalAmount)))
		}
		if item.TotalAmount.GreaterThan(item.RegisteredAmount) {
			res.Violations = append(res.Violations, r.violation(item,
				fmt.Sprintf("item %s total %s exceeds registered %s", item.Barcode, item.TotalAmount, item.RegisteredAmount)))
		}
		if item.TotalAmount.IsNegative() {
			res.Violations = append(res.Violations, r.violation(item,
				fmt.Sprintf("item %s total %s is negative", item.Barcode, item.TotalAmount)))
		}
	}
	return res, nil
}

func (r conservationRule) violation(item domain.Item, msg string) domain.Violation {
	return domain.Violation{
		Rule:     r.Name(),
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityItem,
		EntityID: item.ID,
	}
}

// sumQuantities returns the stored remaining and the outstanding allocated
// quantity for one item.
func sumQuantities(records []domain.StorageRecord, allocations []domain.TestAllocation) (decimal.Decimal, decimal.Decimal) {
	stored := decimal.Zero
	for _, rec := range records {
		stored = stored.Add(rec.AmountRemaining)
	}
	outstanding := decimal.Zero
	for _, alloc := range allocations {
		outstanding = outstanding.Add(alloc.Outstanding())
	}
	return stored, outstanding
}

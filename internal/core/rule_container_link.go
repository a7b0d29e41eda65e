package core

import (
	"context"
	"fmt"

	"sampletrack/pkg/domain"
)

// NewContainerLinkBoundRule returns the rule that a container link holds a
// positive amount no larger than its record's remaining quantity.
func NewContainerLinkBoundRule() domain.Rule {
	return containerLinkBoundRule{}
}

type containerLinkBoundRule struct{}

func (containerLinkBoundRule) Name() string { return "container_link_bound" }

func (r containerLinkBoundRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	cs := collectChanges(changes)
	res := domain.Result{}
	for _, recordID := range sortedKeys(cs.records) {
		link, ok, err := view.FindContainerLinkByRecord(recordID)
		if err != nil {
			return domain.Result{}, err
		}
		if !ok {
			continue
		}
		if _, gone := cs.deleted[recordID]; gone {
			res.Violations = append(res.Violations, r.violation(link,
				fmt.Sprintf("storage record %s deleted while linked to container %s", recordID, link.ContainerID)))
			continue
		}
		rec, err := view.GetStorageRecord(recordID)
		if err != nil {
			return domain.Result{}, err
		}
		if !link.Amount.IsPositive() {
			res.Violations = append(res.Violations, r.violation(link,
				fmt.Sprintf("container link for record %s holds %s", recordID, link.Amount)))
			continue
		}
		if link.Amount.GreaterThan(rec.AmountRemaining) {
			res.Violations = append(res.Violations, r.violation(link,
				fmt.Sprintf("container link for record %s holds %s but only %s remains", recordID, link.Amount, rec.AmountRemaining)))
		}
	}
	return res, nil
}

func (r containerLinkBoundRule) violation(link domain.ContainerLink, msg string) domain.Violation {
	return domain.Violation{
		Rule:     r.Name(),
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityContainerLink,
		EntityID: link.ID,
	}
}

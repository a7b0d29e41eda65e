package core

import (
	"context"
	"fmt"
	"strings"

	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

// DefaultContainerCapacity is assigned to container types created without
// a default capacity.
var DefaultContainerCapacity = decimal.NewFromInt(100)

// Occupancy summarizes the quantity held by a container.
type Occupancy struct {
	Container Container
	Fill      decimal.Decimal
	// Capacity and Available are nil for unbounded containers.
	Capacity  *decimal.Decimal
	Available *decimal.Decimal
	Links     []ContainerLink
}

// Empty reports whether nothing is linked to the container.
func (o Occupancy) Empty() bool { return len(o.Links) == 0 }

// CreateLocation registers a storage location.
func (s *Service) CreateLocation(ctx context.Context, location Location) (Location, Result, error) {
	var created Location
	res, err := s.run(ctx, "create_location", func(tx Transaction) error {
		location.Name = strings.TrimSpace(location.Name)
		if location.Name == "" {
			return domain.ValidationError{Field: "name", Message: "is required"}
		}
		var err error
		created, err = tx.CreateLocation(location)
		if err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			Action: domain.HistoryLocationCreated,
			Note:   fmt.Sprintf("location %s (%s) created", created.Name, created.ID),
		})
	})
	return created, res, err
}

// DeleteLocation removes a location that holds no storage records and no
// containers.
func (s *Service) DeleteLocation(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_location", func(tx Transaction) error {
		loc, err := tx.GetLocation(id)
		if err != nil {
			return err
		}
		records, err := tx.CountStorageRecordsByLocation(id)
		if err != nil {
			return err
		}
		containers, err := tx.CountContainersByLocation(id)
		if err != nil {
			return err
		}
		if dependents := nonZero(map[EntityType]int{
			EntityStorageRecord: records,
			EntityContainer:     containers,
		}); len(dependents) > 0 {
			return &domain.HasDependentsError{Entity: EntityLocation, ID: id, Dependents: dependents}
		}
		if err := tx.DeleteLocation(id); err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			Action: domain.HistoryLocationDeleted,
			Note:   fmt.Sprintf("location %s (%s) deleted", loc.Name, loc.ID),
		})
	})
}

// CreateContainerType registers a container type. A zero default capacity
// falls back to DefaultContainerCapacity.
func (s *Service) CreateContainerType(ctx context.Context, ct ContainerType) (ContainerType, Result, error) {
	var created ContainerType
	res, err := s.run(ctx, "create_container_type", func(tx Transaction) error {
		ct.Name = strings.TrimSpace(ct.Name)
		if ct.Name == "" {
			return domain.ValidationError{Field: "name", Message: "is required"}
		}
		if err := requireNonNegative("default_capacity", ct.DefaultCapacity); err != nil {
			return err
		}
		if ct.DefaultCapacity.IsZero() {
			ct.DefaultCapacity = DefaultContainerCapacity
		}
		var err error
		created, err = tx.CreateContainerType(ct)
		if err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			Action: domain.HistoryContainerTypeCreated,
			Note:   fmt.Sprintf("container type %s (%s) created with capacity %s", created.Name, created.ID, created.DefaultCapacity),
		})
	})
	return created, res, err
}

// DeleteContainerType removes a container type no container uses.
func (s *Service) DeleteContainerType(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_container_type", func(tx Transaction) error {
		ct, err := tx.GetContainerType(id)
		if err != nil {
			return err
		}
		n, err := tx.CountContainersByType(id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &domain.HasDependentsError{Entity: EntityContainerType, ID: id, Dependents: map[EntityType]int{EntityContainer: n}}
		}
		if err := tx.DeleteContainerType(id); err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			Action: domain.HistoryContainerTypeDeleted,
			Note:   fmt.Sprintf("container type %s (%s) deleted", ct.Name, ct.ID),
		})
	})
}

// CreateContainer registers a container. An empty barcode is generated; a
// nil capacity is inherited from the container type, and stays nil
// (unbounded) for untyped containers.
func (s *Service) CreateContainer(ctx context.Context, c Container) (Container, Result, error) {
	var created Container
	res, err := s.run(ctx, "create_container", func(tx Transaction) error {
		if _, err := tx.GetLocation(c.LocationID); err != nil {
			return err
		}
		if c.Capacity != nil && !c.Capacity.IsPositive() {
			return domain.ValidationError{Field: "capacity", Message: "must be greater than zero"}
		}
		if c.TypeID != nil {
			ct, err := tx.GetContainerType(*c.TypeID)
			if err != nil {
				return err
			}
			if c.Capacity == nil {
				c.Capacity = amountRef(ct.DefaultCapacity)
			}
		}
		c.Barcode = strings.TrimSpace(c.Barcode)
		if c.Barcode == "" {
			barcode, err := nextContainerBarcode(tx, tx.Now())
			if err != nil {
				return err
			}
			c.Barcode = barcode
		}
		var err error
		created, err = tx.CreateContainer(c)
		if err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			ContainerID: ref(created.ID),
			Action:      domain.HistoryContainerCreated,
			Note:        fmt.Sprintf("container %s created at location %s", created.Barcode, created.LocationID),
		})
	})
	return created, res, err
}

// DeleteContainer removes an empty container.
func (s *Service) DeleteContainer(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_container", func(tx Transaction) error {
		c, err := tx.GetContainer(id)
		if err != nil {
			return err
		}
		links, err := tx.ListContainerLinks(id)
		if err != nil {
			return err
		}
		if len(links) > 0 {
			return &domain.HasDependentsError{Entity: EntityContainer, ID: id, Dependents: map[EntityType]int{EntityContainerLink: len(links)}}
		}
		if err := tx.DeleteContainer(id); err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			ContainerID: ref(c.ID),
			Action:      domain.HistoryContainerDeleted,
			Note:        fmt.Sprintf("container %s deleted", c.Barcode),
		})
	})
}

// ContainerOccupancy reports the current fill of a container.
func (s *Service) ContainerOccupancy(ctx context.Context, id string) (Occupancy, error) {
	var out Occupancy
	err := s.view(ctx, "container_occupancy", func(r Reader) error {
		c, err := r.GetContainer(id)
		if err != nil {
			return err
		}
		links, err := r.ListContainerLinks(id)
		if err != nil {
			return err
		}
		fill := decimal.Zero
		for _, link := range links {
			fill = fill.Add(link.Amount)
		}
		out = Occupancy{Container: c, Fill: fill, Links: links}
		if c.Capacity != nil {
			capacity := *c.Capacity
			out.Capacity = &capacity
			out.Available = amountRef(decimal.Max(capacity.Sub(fill), decimal.Zero))
		}
		return nil
	})
	return out, err
}

// DeleteItem removes an item that holds no quantity, has no allocations and
// no split children. Its empty storage records go with it.
func (s *Service) DeleteItem(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_item", func(tx Transaction) error {
		item, err := tx.GetItem(id)
		if err != nil {
			return err
		}
		records, err := tx.ListStorageRecordsByItem(id)
		if err != nil {
			return err
		}
		allocations, err := tx.ListAllocationsByItem(id)
		if err != nil {
			return err
		}
		children, err := tx.ListChildItems(id)
		if err != nil {
			return err
		}
		holding := 0
		for _, rec := range records {
			if rec.AmountRemaining.IsPositive() {
				holding++
			}
		}
		if dependents := nonZero(map[EntityType]int{
			EntityStorageRecord:  holding,
			EntityTestAllocation: len(allocations),
			EntityItem:           len(children),
		}); len(dependents) > 0 {
			return &domain.HasDependentsError{Entity: EntityItem, ID: id, Dependents: dependents}
		}
		for _, rec := range records {
			if link, ok, err := tx.FindContainerLinkByRecord(rec.ID); err != nil {
				return err
			} else if ok {
				if err := tx.DeleteContainerLink(link.ID); err != nil {
					return err
				}
			}
			if err := tx.DeleteStorageRecord(rec.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteItem(id); err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			ItemID: ref(item.ID),
			Action: domain.HistoryItemDeleted,
			Note:   fmt.Sprintf("item %s deleted", item.Barcode),
		})
	})
}

func nonZero(counts map[EntityType]int) map[EntityType]int {
	out := make(map[EntityType]int)
	for kind, n := range counts {
		if n > 0 {
			out[kind] = n
		}
	}
	return out
}

package sqlstore

import (
	"database/sql"
	"fmt"

	"sampletrack/pkg/domain"
)

const (
	testColumns       = `id, number, name, allocation_seq, created_at, updated_at`
	allocationColumns = `id, item_id, test_id, storage_record_id, return_location_id, identifier, sequence,
		amount_allocated, amount_used, amount_returned, status, notes, source_allocation_id, transferred_to_id,
		created_at, updated_at`
)

func scanTest(row rowScanner) (domain.Test, error) {
	var (
		t                domain.Test
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.Number, &t.Name, &t.AllocationSeq, &created, &updated); err != nil {
		return domain.Test{}, err
	}
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	return t, nil
}

func scanAllocation(row rowScanner) (domain.TestAllocation, error) {
	var (
		a                domain.TestAllocation
		status           string
		source, target   sql.NullString
		created, updated int64
	)
	if err := row.Scan(&a.ID, &a.ItemID, &a.TestID, &a.StorageRecordID, &a.ReturnLocationID, &a.Identifier, &a.Sequence,
		&a.AmountAllocated, &a.AmountUsed, &a.AmountReturned, &status, &a.Notes, &source, &target,
		&created, &updated); err != nil {
		return domain.TestAllocation{}, err
	}
	a.Status = domain.AllocationStatus(status)
	a.SourceAllocationID = stringPtr(source)
	a.TransferredToID = stringPtr(target)
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	return a, nil
}

func (r reader) GetTest(id string) (domain.Test, error) {
	t, err := scanTest(r.queryRow(`SELECT `+testColumns+` FROM tests WHERE id = ?`+r.lock, id))
	if err != nil {
		return domain.Test{}, notFound(err, domain.EntityTest, id)
	}
	return t, nil
}

func (r reader) GetTestAllocation(id string) (domain.TestAllocation, error) {
	a, err := scanAllocation(r.queryRow(`SELECT `+allocationColumns+` FROM test_allocations WHERE id = ?`+r.lock, id))
	if err != nil {
		return domain.TestAllocation{}, notFound(err, domain.EntityTestAllocation, id)
	}
	return a, nil
}

func (r reader) listAllocations(where, order string, args ...any) ([]domain.TestAllocation, error) {
	rows, err := r.query(`SELECT `+allocationColumns+` FROM test_allocations `+where+` ORDER BY `+order+r.lock, args...)
	if err != nil {
		return nil, fmt.Errorf("list test allocations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.TestAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r reader) ListAllocationsByItem(itemID string) ([]domain.TestAllocation, error) {
	return r.listAllocations(`WHERE item_id = ?`, `created_at, id`, itemID)
}

func (r reader) ListAllocationsByTest(testID string) ([]domain.TestAllocation, error) {
	return r.listAllocations(`WHERE test_id = ?`, `sequence, id`, testID)
}

func (tx *transaction) CreateTest(t domain.Test) (domain.Test, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	if err := tx.insert(domain.EntityTest, "number", t.Number,
		`INSERT INTO tests (`+testColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Number, t.Name, t.AllocationSeq, toNanos(t.CreatedAt), toNanos(t.UpdatedAt)); err != nil {
		return domain.Test{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityTest, Action: domain.ActionCreate, After: t})
	return t, nil
}

func (tx *transaction) UpdateTest(id string, mutator func(*domain.Test) error) (domain.Test, error) {
	before, err := tx.GetTest(id)
	if err != nil {
		return domain.Test{}, err
	}
	current := before
	if err := mutator(&current); err != nil {
		return domain.Test{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if err := tx.execOne(domain.EntityTest, id,
		`UPDATE tests SET number = ?, name = ?, allocation_seq = ?, updated_at = ? WHERE id = ?`,
		current.Number, current.Name, current.AllocationSeq, toNanos(current.UpdatedAt), id); err != nil {
		return domain.Test{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityTest, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) CreateTestAllocation(a domain.TestAllocation) (domain.TestAllocation, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, err := tx.GetItem(a.ItemID); err != nil {
		return domain.TestAllocation{}, err
	}
	if _, err := tx.GetTest(a.TestID); err != nil {
		return domain.TestAllocation{}, err
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	if err := tx.insert(domain.EntityTestAllocation, "identifier", a.Identifier,
		`INSERT INTO test_allocations (`+allocationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ItemID, a.TestID, a.StorageRecordID, a.ReturnLocationID, a.Identifier, a.Sequence,
		a.AmountAllocated, a.AmountUsed, a.AmountReturned, string(a.Status), a.Notes,
		nullString(a.SourceAllocationID), nullString(a.TransferredToID),
		toNanos(a.CreatedAt), toNanos(a.UpdatedAt)); err != nil {
		return domain.TestAllocation{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityTestAllocation, Action: domain.ActionCreate, After: a})
	return a, nil
}

func (tx *transaction) UpdateTestAllocation(id string, mutator func(*domain.TestAllocation) error) (domain.TestAllocation, error) {
	before, err := tx.GetTestAllocation(id)
	if err != nil {
		return domain.TestAllocation{}, err
	}
	current := before
	if err := mutator(&current); err != nil {
		return domain.TestAllocation{}, err
	}
	current.ID = id
	current.ItemID = before.ItemID
	current.Identifier = before.Identifier
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if err := tx.execOne(domain.EntityTestAllocation, id,
		`UPDATE test_allocations SET test_id = ?, storage_record_id = ?, return_location_id = ?, sequence = ?,
			amount_allocated = ?, amount_used = ?, amount_returned = ?, status = ?, notes = ?,
			source_allocation_id = ?, transferred_to_id = ?, updated_at = ? WHERE id = ?`,
		current.TestID, current.StorageRecordID, current.ReturnLocationID, current.Sequence,
		current.AmountAllocated, current.AmountUsed, current.AmountReturned, string(current.Status), current.Notes,
		nullString(current.SourceAllocationID), nullString(current.TransferredToID), toNanos(current.UpdatedAt), id); err != nil {
		return domain.TestAllocation{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityTestAllocation, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

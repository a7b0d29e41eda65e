package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

const historyColumns = `id, item_id, container_id, test_id, allocation_id, action, actor, amount, note, occurred_at`

func scanHistory(row rowScanner) (domain.HistoryEntry, error) {
	var (
		e                            domain.HistoryEntry
		item, container, test, alloc sql.NullString
		action                       string
		amount                       decimal.NullDecimal
		occurred                     int64
	)
	if err := row.Scan(&e.ID, &item, &container, &test, &alloc, &action, &e.Actor, &amount, &e.Note, &occurred); err != nil {
		return domain.HistoryEntry{}, err
	}
	e.ItemID = stringPtr(item)
	e.ContainerID = stringPtr(container)
	e.TestID = stringPtr(test)
	e.AllocationID = stringPtr(alloc)
	e.Action = domain.HistoryAction(action)
	if amount.Valid {
		v := amount.Decimal
		e.Amount = &v
	}
	e.OccurredAt = fromNanos(occurred)
	return e, nil
}

// ListHistory returns matching entries oldest first, in insertion order for
// entries sharing a timestamp.
func (r reader) ListHistory(q domain.HistoryQuery) ([]domain.HistoryEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if q.ItemID != "" {
		clauses = append(clauses, "item_id = ?")
		args = append(args, q.ItemID)
	}
	if q.TestID != "" {
		clauses = append(clauses, "test_id = ?")
		args = append(args, q.TestID)
	}
	if q.ContainerID != "" {
		clauses = append(clauses, "container_id = ?")
		args = append(args, q.ContainerID)
	}
	if !q.From.IsZero() {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, toNanos(q.From))
	}
	if !q.To.IsZero() {
		clauses = append(clauses, "occurred_at < ?")
		args = append(args, toNanos(q.To))
	}
	query := `SELECT ` + historyColumns + ` FROM history_entries`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY occurred_at, seq`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}
	rows, err := r.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (tx *transaction) AppendHistory(e domain.HistoryEntry) (domain.HistoryEntry, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = tx.now
	}
	if err := tx.insert(domain.EntityHistoryEntry, "id", e.ID,
		`INSERT INTO history_entries (`+historyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nullString(e.ItemID), nullString(e.ContainerID), nullString(e.TestID), nullString(e.AllocationID),
		string(e.Action), e.Actor, nullDecimal(e.Amount), e.Note, toNanos(e.OccurredAt)); err != nil {
		return domain.HistoryEntry{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityHistoryEntry, Action: domain.ActionCreate, After: e})
	return e, nil
}

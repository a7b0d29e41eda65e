package sqlstore

import (
	"database/sql"
	"fmt"

	"sampletrack/pkg/domain"
)

const itemColumns = `id, description, barcode, unit, owner_id, registered_amount, total_amount, status, parent_item_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		item             domain.Item
		status           string
		parent           sql.NullString
		created, updated int64
	)
	if err := row.Scan(&item.ID, &item.Description, &item.Barcode, &item.Unit, &item.OwnerID,
		&item.RegisteredAmount, &item.TotalAmount, &status, &parent, &created, &updated); err != nil {
		return domain.Item{}, err
	}
	item.Status = domain.ItemStatus(status)
	item.ParentItemID = stringPtr(parent)
	item.CreatedAt = fromNanos(created)
	item.UpdatedAt = fromNanos(updated)
	return item, nil
}

func (r reader) listItems(where string, args ...any) ([]domain.Item, error) {
	rows, err := r.query(`SELECT `+itemColumns+` FROM items `+where+` ORDER BY created_at, id`+r.lock, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r reader) GetItem(id string) (domain.Item, error) {
	item, err := scanItem(r.queryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`+r.lock, id))
	if err != nil {
		return domain.Item{}, notFound(err, domain.EntityItem, id)
	}
	return item, nil
}

func (r reader) ListItems() ([]domain.Item, error) { return r.listItems("") }

func (r reader) ListChildItems(parentID string) ([]domain.Item, error) {
	return r.listItems("WHERE parent_item_id = ?", parentID)
}

func (r reader) ItemBarcodeExists(barcode string) (bool, error) {
	return r.exists(`SELECT 1 FROM items WHERE barcode = ?`, barcode)
}

func (tx *transaction) CreateItem(item domain.Item) (domain.Item, error) {
	if item.ID == "" {
		item.ID = newID()
	}
	item.CreatedAt = tx.now
	item.UpdatedAt = tx.now
	if err := tx.insert(domain.EntityItem, "barcode", item.Barcode,
		`INSERT INTO items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Description, item.Barcode, item.Unit, item.OwnerID,
		item.RegisteredAmount, item.TotalAmount, string(item.Status), nullString(item.ParentItemID),
		toNanos(item.CreatedAt), toNanos(item.UpdatedAt)); err != nil {
		return domain.Item{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: item})
	return item, nil
}

func (tx *transaction) UpdateItem(id string, mutator func(*domain.Item) error) (domain.Item, error) {
	before, err := tx.GetItem(id)
	if err != nil {
		return domain.Item{}, err
	}
	current := before
	if err := mutator(&current); err != nil {
		return domain.Item{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if err := tx.execOne(domain.EntityItem, id,
		`UPDATE items SET description = ?, barcode = ?, unit = ?, owner_id = ?, registered_amount = ?,
			total_amount = ?, status = ?, parent_item_id = ?, updated_at = ? WHERE id = ?`,
		current.Description, current.Barcode, current.Unit, current.OwnerID, current.RegisteredAmount,
		current.TotalAmount, string(current.Status), nullString(current.ParentItemID), toNanos(current.UpdatedAt), id); err != nil {
		return domain.Item{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeleteItem(id string) error {
	before, err := tx.GetItem(id)
	if err != nil {
		return err
	}
	if err := tx.execOne(domain.EntityItem, id, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: before})
	return nil
}

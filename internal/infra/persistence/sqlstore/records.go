package sqlstore

import (
	"database/sql"
	"fmt"

	"sampletrack/pkg/domain"
)

const (
	locationColumns = `id, name, description, created_at, updated_at`
	recordColumns   = `id, item_id, location_id, amount_remaining, expires_at, created_at, updated_at`
)

func scanLocation(row rowScanner) (domain.Location, error) {
	var (
		loc              domain.Location
		created, updated int64
	)
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Description, &created, &updated); err != nil {
		return domain.Location{}, err
	}
	loc.CreatedAt = fromNanos(created)
	loc.UpdatedAt = fromNanos(updated)
	return loc, nil
}

func scanRecord(row rowScanner) (domain.StorageRecord, error) {
	var (
		rec              domain.StorageRecord
		expires          sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&rec.ID, &rec.ItemID, &rec.LocationID, &rec.AmountRemaining, &expires, &created, &updated); err != nil {
		return domain.StorageRecord{}, err
	}
	rec.ExpiresAt = timePtr(expires)
	rec.CreatedAt = fromNanos(created)
	rec.UpdatedAt = fromNanos(updated)
	return rec, nil
}

func (r reader) GetLocation(id string) (domain.Location, error) {
	loc, err := scanLocation(r.queryRow(`SELECT `+locationColumns+` FROM locations WHERE id = ?`+r.lock, id))
	if err != nil {
		return domain.Location{}, notFound(err, domain.EntityLocation, id)
	}
	return loc, nil
}

func (r reader) GetStorageRecord(id string) (domain.StorageRecord, error) {
	rec, err := scanRecord(r.queryRow(`SELECT `+recordColumns+` FROM storage_records WHERE id = ?`+r.lock, id))
	if err != nil {
		return domain.StorageRecord{}, notFound(err, domain.EntityStorageRecord, id)
	}
	return rec, nil
}

func (r reader) ListStorageRecordsByItem(itemID string) ([]domain.StorageRecord, error) {
	rows, err := r.query(`SELECT `+recordColumns+` FROM storage_records WHERE item_id = ? ORDER BY created_at, id`+r.lock, itemID)
	if err != nil {
		return nil, fmt.Errorf("list storage records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.StorageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan storage record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r reader) CountStorageRecordsByLocation(locationID string) (int, error) {
	return r.count(`SELECT COUNT(*) FROM storage_records WHERE location_id = ?`, locationID)
}

func (tx *transaction) CreateLocation(loc domain.Location) (domain.Location, error) {
	if loc.ID == "" {
		loc.ID = newID()
	}
	loc.CreatedAt = tx.now
	loc.UpdatedAt = tx.now
	if err := tx.insert(domain.EntityLocation, "name", loc.Name,
		`INSERT INTO locations (`+locationColumns+`) VALUES (?, ?, ?, ?, ?)`,
		loc.ID, loc.Name, loc.Description, toNanos(loc.CreatedAt), toNanos(loc.UpdatedAt)); err != nil {
		return domain.Location{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityLocation, Action: domain.ActionCreate, After: loc})
	return loc, nil
}

func (tx *transaction) DeleteLocation(id string) error {
	before, err := tx.GetLocation(id)
	if err != nil {
		return err
	}
	if err := tx.execOne(domain.EntityLocation, id, `DELETE FROM locations WHERE id = ?`, id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityLocation, Action: domain.ActionDelete, Before: before})
	return nil
}

func (tx *transaction) CreateStorageRecord(rec domain.StorageRecord) (domain.StorageRecord, error) {
	if rec.ID == "" {
		rec.ID = newID()
	}
	if _, err := tx.GetItem(rec.ItemID); err != nil {
		return domain.StorageRecord{}, err
	}
	if _, err := tx.GetLocation(rec.LocationID); err != nil {
		return domain.StorageRecord{}, err
	}
	rec.CreatedAt = tx.now
	rec.UpdatedAt = tx.now
	if err := tx.insert(domain.EntityStorageRecord, "id", rec.ID,
		`INSERT INTO storage_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ItemID, rec.LocationID, rec.AmountRemaining, nullNanos(rec.ExpiresAt),
		toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt)); err != nil {
		return domain.StorageRecord{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityStorageRecord, Action: domain.ActionCreate, After: rec})
	return rec, nil
}

func (tx *transaction) UpdateStorageRecord(id string, mutator func(*domain.StorageRecord) error) (domain.StorageRecord, error) {
	before, err := tx.GetStorageRecord(id)
	if err != nil {
		return domain.StorageRecord{}, err
	}
	current := before
	if err := mutator(&current); err != nil {
		return domain.StorageRecord{}, err
	}
	if current.LocationID != before.LocationID {
		if _, err := tx.GetLocation(current.LocationID); err != nil {
			return domain.StorageRecord{}, err
		}
	}
	current.ID = id
	current.ItemID = before.ItemID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if err := tx.execOne(domain.EntityStorageRecord, id,
		`UPDATE storage_records SET location_id = ?, amount_remaining = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
		current.LocationID, current.AmountRemaining, nullNanos(current.ExpiresAt), toNanos(current.UpdatedAt), id); err != nil {
		return domain.StorageRecord{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityStorageRecord, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeleteStorageRecord(id string) error {
	before, err := tx.GetStorageRecord(id)
	if err != nil {
		return err
	}
	if err := tx.execOne(domain.EntityStorageRecord, id, `DELETE FROM storage_records WHERE id = ?`, id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityStorageRecord, Action: domain.ActionDelete, Before: before})
	return nil
}

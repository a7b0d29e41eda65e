package sqlstore

import (
	"database/sql"
	"fmt"

	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

const (
	containerTypeColumns = `id, name, description, default_capacity, created_at, updated_at`
	containerColumns     = `id, barcode, name, type_id, capacity, location_id, is_mixed, created_at, updated_at`
	linkColumns          = `id, storage_record_id, container_id, amount, created_at, updated_at`
)

func scanContainerType(row rowScanner) (domain.ContainerType, error) {
	var (
		ct               domain.ContainerType
		created, updated int64
	)
	if err := row.Scan(&ct.ID, &ct.Name, &ct.Description, &ct.DefaultCapacity, &created, &updated); err != nil {
		return domain.ContainerType{}, err
	}
	ct.CreatedAt = fromNanos(created)
	ct.UpdatedAt = fromNanos(updated)
	return ct, nil
}

func scanContainer(row rowScanner) (domain.Container, error) {
	var (
		c                domain.Container
		typeID           sql.NullString
		capacity         decimal.NullDecimal
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.Barcode, &c.Name, &typeID, &capacity, &c.LocationID, &c.IsMixed, &created, &updated); err != nil {
		return domain.Container{}, err
	}
	c.TypeID = stringPtr(typeID)
	if capacity.Valid {
		v := capacity.Decimal
		c.Capacity = &v
	}
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)
	return c, nil
}

func scanLink(row rowScanner) (domain.ContainerLink, error) {
	var (
		l                domain.ContainerLink
		created, updated int64
	)
	if err := row.Scan(&l.ID, &l.StorageRecordID, &l.ContainerID, &l.Amount, &created, &updated); err != nil {
		return domain.ContainerLink{}, err
	}
	l.CreatedAt = fromNanos(created)
	l.UpdatedAt = fromNanos(updated)
	return l, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (r reader) GetContainerType(id string) (domain.ContainerType, error) {
	ct, err := scanContainerType(r.queryRow(`SELECT `+containerTypeColumns+` FROM container_types WHERE id = ?`+r.lock, id))
	if err != nil {
		return domain.ContainerType{}, notFound(err, domain.EntityContainerType, id)
	}
	return ct, nil
}

func (r reader) GetContainer(id string) (domain.Container, error) {
	c, err := scanContainer(r.queryRow(`SELECT `+containerColumns+` FROM containers WHERE id = ?`+r.lock, id))
	if err != nil {
		return domain.Container{}, notFound(err, domain.EntityContainer, id)
	}
	return c, nil
}

func (r reader) ContainerBarcodeExists(barcode string) (bool, error) {
	return r.exists(`SELECT 1 FROM containers WHERE barcode = ?`, barcode)
}

func (r reader) CountContainers() (int, error) {
	return r.count(`SELECT COUNT(*) FROM containers`)
}

func (r reader) CountContainersByType(typeID string) (int, error) {
	return r.count(`SELECT COUNT(*) FROM containers WHERE type_id = ?`, typeID)
}

func (r reader) CountContainersByLocation(locationID string) (int, error) {
	return r.count(`SELECT COUNT(*) FROM containers WHERE location_id = ?`, locationID)
}

func (r reader) ListContainerLinks(containerID string) ([]domain.ContainerLink, error) {
	rows, err := r.query(`SELECT `+linkColumns+` FROM container_links WHERE container_id = ? ORDER BY created_at, id`+r.lock, containerID)
	if err != nil {
		return nil, fmt.Errorf("list container links: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.ContainerLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan container link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r reader) FindContainerLinkByRecord(recordID string) (domain.ContainerLink, bool, error) {
	l, err := scanLink(r.queryRow(`SELECT `+linkColumns+` FROM container_links WHERE storage_record_id = ?`+r.lock, recordID))
	if err == sql.ErrNoRows {
		return domain.ContainerLink{}, false, nil
	}
	if err != nil {
		return domain.ContainerLink{}, false, fmt.Errorf("find container link: %w", err)
	}
	return l, true, nil
}

func (r reader) getLink(id string) (domain.ContainerLink, error) {
	l, err := scanLink(r.queryRow(`SELECT `+linkColumns+` FROM container_links WHERE id = ?`+r.lock, id))
	if err != nil {
		return domain.ContainerLink{}, notFound(err, domain.EntityContainerLink, id)
	}
	return l, nil
}

func (tx *transaction) CreateContainerType(ct domain.ContainerType) (domain.ContainerType, error) {
	if ct.ID == "" {
		ct.ID = newID()
	}
	ct.CreatedAt = tx.now
	ct.UpdatedAt = tx.now
	if err := tx.insert(domain.EntityContainerType, "name", ct.Name,
		`INSERT INTO container_types (`+containerTypeColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		ct.ID, ct.Name, ct.Description, ct.DefaultCapacity, toNanos(ct.CreatedAt), toNanos(ct.UpdatedAt)); err != nil {
		return domain.ContainerType{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContainerType, Action: domain.ActionCreate, After: ct})
	return ct, nil
}

func (tx *transaction) DeleteContainerType(id string) error {
	before, err := tx.GetContainerType(id)
	if err != nil {
		return err
	}
	if err := tx.execOne(domain.EntityContainerType, id, `DELETE FROM container_types WHERE id = ?`, id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContainerType, Action: domain.ActionDelete, Before: before})
	return nil
}

func (tx *transaction) CreateContainer(c domain.Container) (domain.Container, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, err := tx.GetLocation(c.LocationID); err != nil {
		return domain.Container{}, err
	}
	if c.TypeID != nil {
		if _, err := tx.GetContainerType(*c.TypeID); err != nil {
			return domain.Container{}, err
		}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	if err := tx.insert(domain.EntityContainer, "barcode", c.Barcode,
		`INSERT INTO containers (`+containerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Barcode, c.Name, nullString(c.TypeID), nullDecimal(c.Capacity), c.LocationID, c.IsMixed,
		toNanos(c.CreatedAt), toNanos(c.UpdatedAt)); err != nil {
		return domain.Container{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContainer, Action: domain.ActionCreate, After: c})
	return c, nil
}

func (tx *transaction) DeleteContainer(id string) error {
	before, err := tx.GetContainer(id)
	if err != nil {
		return err
	}
	if err := tx.execOne(domain.EntityContainer, id, `DELETE FROM containers WHERE id = ?`, id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContainer, Action: domain.ActionDelete, Before: before})
	return nil
}

func (tx *transaction) CreateContainerLink(l domain.ContainerLink) (domain.ContainerLink, error) {
	if l.ID == "" {
		l.ID = newID()
	}
	if _, err := tx.GetStorageRecord(l.StorageRecordID); err != nil {
		return domain.ContainerLink{}, err
	}
	if _, err := tx.GetContainer(l.ContainerID); err != nil {
		return domain.ContainerLink{}, err
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	if err := tx.insert(domain.EntityContainerLink, "storage_record_id", l.StorageRecordID,
		`INSERT INTO container_links (`+linkColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.StorageRecordID, l.ContainerID, l.Amount, toNanos(l.CreatedAt), toNanos(l.UpdatedAt)); err != nil {
		return domain.ContainerLink{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContainerLink, Action: domain.ActionCreate, After: l})
	return l, nil
}

func (tx *transaction) UpdateContainerLink(id string, mutator func(*domain.ContainerLink) error) (domain.ContainerLink, error) {
	before, err := tx.getLink(id)
	if err != nil {
		return domain.ContainerLink{}, err
	}
	current := before
	if err := mutator(&current); err != nil {
		return domain.ContainerLink{}, err
	}
	current.ID = id
	current.StorageRecordID = before.StorageRecordID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if err := tx.execOne(domain.EntityContainerLink, id,
		`UPDATE container_links SET container_id = ?, amount = ?, updated_at = ? WHERE id = ?`,
		current.ContainerID, current.Amount, toNanos(current.UpdatedAt), id); err != nil {
		return domain.ContainerLink{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContainerLink, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeleteContainerLink(id string) error {
	before, err := tx.getLink(id)
	if err != nil {
		return err
	}
	if err := tx.execOne(domain.EntityContainerLink, id, `DELETE FROM container_links WHERE id = ?`, id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContainerLink, Action: domain.ActionDelete, Before: before})
	return nil
}

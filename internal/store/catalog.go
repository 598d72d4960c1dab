package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/google/uuid"
)

type CatalogStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db, now: time.Now}
}

func scanCatalogItem(scanner interface{ Scan(...any) error }) (*model.CatalogItem, error) {
	var c model.CatalogItem
	var active int

	err := scanner.Scan(&c.ID, &c.Name, &c.Cost, &c.Emoji, &c.ImageRef, &active, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Active = active != 0
	return &c, nil
}

const catalogCols = `id, name, cost, emoji, image_ref, active, created_at`

func (s *CatalogStore) Create(ctx context.Context, name string, cost int, emoji, imageRef string, active bool) (*model.CatalogItem, error) {
	var a int
	if active {
		a = 1
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_items (id, name, cost, emoji, image_ref, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, name, cost, emoji, imageRef, a, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert catalog item: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *CatalogStore) GetByID(ctx context.Context, id string) (*model.CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+catalogCols+` FROM catalog_items WHERE id = ?`, id)
	c, err := scanCatalogItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog item: %w", err)
	}
	return c, nil
}

// List returns catalog items ordered by cost, then name. When activeOnly is
// set, retired items are omitted.
func (s *CatalogStore) List(ctx context.Context, activeOnly bool) ([]model.CatalogItem, error) {
	query := `SELECT ` + catalogCols + ` FROM catalog_items`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY cost ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list catalog items: %w", err)
	}
	defer rows.Close()

	var items []model.CatalogItem
	for rows.Next() {
		c, err := scanCatalogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

func (s *CatalogStore) Update(ctx context.Context, id, name string, cost int, emoji, imageRef string, active bool) (*model.CatalogItem, error) {
	var a int
	if active {
		a = 1
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE catalog_items SET name = ?, cost = ?, emoji = ?, image_ref = ?, active = ? WHERE id = ?`,
		name, cost, emoji, imageRef, a, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update catalog item: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a catalog item. Vouchers already issued keep their own copy
// of the item name and cost.
func (s *CatalogStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM catalog_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete catalog item: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

// ListActiveCategories returns all active categories ordered by name.
func (s *SQLiteStorage) ListActiveCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, description, is_active, created_at
		FROM categories WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		category, scanErr := scanCategory(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan category: %w", scanErr)
		}
		categories = append(categories, *category)
	}
	return categories, rows.Err()
}

// GetCategory retrieves a single category by id.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, description, is_active, created_at
		FROM categories WHERE id = ?`, id)

	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("category %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get category %d: %w", id, err)
	}
	return category, nil
}

// GetCategoryByCode retrieves a single category by its stable code.
func (s *SQLiteStorage) GetCategoryByCode(ctx context.Context, code string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(code, "code"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, description, is_active, created_at
		FROM categories WHERE code = ?`, code)

	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("category %q: %w", code, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get category %q: %w", code, err)
	}
	return category, nil
}

// CreateCategory inserts a new category.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := validateString(category.Code, "code"); err != nil {
		return err
	}
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (code, name, description, is_active)
		VALUES (?, ?, ?, ?)`,
		category.Code, category.Name, category.Description, category.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create category %q: %w", category.Code, err)
	}

	category.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get category id: %w", err)
	}
	return nil
}

// ListSubcategories returns the active subcategories of one category.
func (s *SQLiteStorage) ListSubcategories(ctx context.Context, categoryID int64) ([]model.Subcategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, name, is_active, created_at
		FROM subcategories WHERE category_id = ? AND is_active = 1 ORDER BY name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subcategories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subcategory
	for rows.Next() {
		var sub model.Subcategory
		var createdAt sql.NullTime
		if scanErr := rows.Scan(&sub.ID, &sub.CategoryID, &sub.Name, &sub.IsActive, &createdAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan subcategory: %w", scanErr)
		}
		sub.CreatedAt = createdAt.Time
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CreateSubcategory inserts a new subcategory.
func (s *SQLiteStorage) CreateSubcategory(ctx context.Context, sub *model.Subcategory) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("%w: subcategory", ErrNilParameter)
	}
	if err := validateString(sub.Name, "name"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO subcategories (category_id, name, is_active) VALUES (?, ?, ?)`,
		sub.CategoryID, sub.Name, sub.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create subcategory %q: %w", sub.Name, err)
	}

	sub.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get subcategory id: %w", err)
	}
	return nil
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var category model.Category
	var description sql.NullString
	var createdAt sql.NullTime

	err := row.Scan(&category.ID, &category.Code, &category.Name, &description,
		&category.IsActive, &createdAt)
	if err != nil {
		return nil, err
	}

	category.Description = description.String
	category.CreatedAt = createdAt.Time
	return &category, nil
}

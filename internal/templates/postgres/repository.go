// Package postgres provides the PostgreSQL implementation of the
// templates repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/templates"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements templates.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const templateColumns = `id, name, type, channel, subject, content, variables, is_active, created_at, updated_at`

// Create inserts a new template.
func (r *Repository) Create(ctx context.Context, t *domain.Template) error {
	query := `
		INSERT INTO notification_templates (id, name, type, channel, subject, content, variables, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		t.ID, t.Name, t.Type, t.Channel, t.Subject, t.Content, t.Variables, t.IsActive,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetByID retrieves a template by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// GetByName retrieves a template by its unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE name = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, name))
}

// List retrieves templates matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter templates.ListFilter) ([]domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE 1=1`
	args := make([]any, 0, 3)

	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Channel != nil {
		args = append(args, *filter.Channel)
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND is_active = true"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Template, 0)
	for rows.Next() {
		var t domain.Template
		if err := scanTemplate(rows, &t); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// Update saves the mutable fields of a template.
func (r *Repository) Update(ctx context.Context, t *domain.Template) error {
	query := `
		UPDATE notification_templates
		SET subject = $2, content = $3, variables = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		t.ID, t.Subject, t.Content, t.Variables, t.IsActive,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return templates.ErrTemplateNotFound
		}
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	if err := scanTemplate(row, &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, templates.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

func scanTemplate(row pgx.Row, t *domain.Template) error {
	return row.Scan(
		&t.ID,
		&t.Name,
		&t.Type,
		&t.Channel,
		&t.Subject,
		&t.Content,
		&t.Variables,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
}

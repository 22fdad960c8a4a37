package templates

import (
	"context"

	"github.com/bissquit/notification-garden/internal/domain"
)

// Repository defines the interface for template data access.
type Repository interface {
	Create(ctx context.Context, template *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	GetByName(ctx context.Context, name string) (*domain.Template, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Template, error)
	Update(ctx context.Context, template *domain.Template) error
}

// ListFilter narrows template listings.
type ListFilter struct {
	Type       *domain.NotificationType
	Channel    *domain.Channel
	ActiveOnly bool
}

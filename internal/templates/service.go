package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/google/uuid"
)

// Service provides template management and rendering business logic.
type Service struct {
	repo Repository
}

// NewService creates a new template service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput contains data for creating a template.
type CreateInput struct {
	Name      string
	Type      domain.NotificationType
	Channel   domain.Channel
	Subject   string
	Content   string
	Variables map[string]domain.VariableSpec
}

// Create validates and persists a new template.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Template, error) {
	template := &domain.Template{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Type:      input.Type,
		Channel:   input.Channel,
		Subject:   input.Subject,
		Content:   input.Content,
		Variables: input.Variables,
		IsActive:  true,
	}

	if err := Validate(template); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByName(ctx, template.Name); err == nil && existing != nil {
		return nil, ErrNameTaken
	} else if err != nil && !errors.Is(err, ErrTemplateNotFound) {
		return nil, fmt.Errorf("check template name: %w", err)
	}

	if err := s.repo.Create(ctx, template); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	slog.Info("template created", "template_id", template.ID, "name", template.Name)
	return template, nil
}

// UpdateInput contains the mutable fields of a template. Name, type and
// channel are fixed once the template exists; only content, subject,
// variables and the active flag may change.
type UpdateInput struct {
	Subject   *string
	Content   *string
	Variables map[string]domain.VariableSpec
	IsActive  *bool
}

// Update applies content/variables/isActive edits to a template.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.Template, error) {
	template, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Subject != nil {
		template.Subject = *input.Subject
	}
	if input.Content != nil {
		template.Content = *input.Content
	}
	if input.Variables != nil {
		template.Variables = input.Variables
	}
	if input.IsActive != nil {
		template.IsActive = *input.IsActive
	}

	if err := Validate(template); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, template); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	slog.Info("template updated", "template_id", template.ID, "active", template.IsActive)
	return template, nil
}

// Get returns a template by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Template, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns templates matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Template, error) {
	return s.repo.List(ctx, filter)
}

// Preview renders a template with the given variables without touching
// any notification state. Inactive templates can be previewed.
func (s *Service) Preview(ctx context.Context, id string, vars map[string]any) (Rendered, error) {
	template, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Rendered{}, err
	}
	return Render(template, vars)
}

// RenderActive renders a template for actual delivery. The template
// must be active.
func (s *Service) RenderActive(ctx context.Context, id string, vars map[string]any) (Rendered, error) {
	template, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Rendered{}, err
	}
	if !template.IsActive {
		return Rendered{}, ErrTemplateInactive
	}
	return Render(template, vars)
}

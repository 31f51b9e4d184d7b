package supplier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// Service manages the supplier directory.
type Service struct {
	repo   Repository
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService builds Service. audit may be nil.
func NewService(repo Repository, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns one page of suppliers with the total match count.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)
	filters.Search = strings.TrimSpace(filters.Search)
	return s.repo.List(ctx, filters)
}

// Get returns one supplier.
func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	sup, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Supplier{}, notFound(id)
	}
	return sup, err
}

// Create registers a supplier.
func (s *Service) Create(ctx context.Context, sup Supplier) (Supplier, error) {
	sup = normalize(sup)
	if err := validate(sup); err != nil {
		return Supplier{}, err
	}
	created, err := s.repo.Create(ctx, sup)
	if shared.IsUniqueViolation(err) {
		return Supplier{}, shared.Conflict(CodeDuplicateCode, "supplier code "+sup.Code+" already exists")
	}
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: create: %w", err)
	}
	s.record(ctx, "supplier:create", created)
	return created, nil
}

// Update replaces the supplier's details.
func (s *Service) Update(ctx context.Context, sup Supplier) (Supplier, error) {
	sup = normalize(sup)
	if err := validate(sup); err != nil {
		return Supplier{}, err
	}
	err := s.repo.Update(ctx, sup)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return Supplier{}, notFound(sup.ID)
	case shared.IsUniqueViolation(err):
		return Supplier{}, shared.Conflict(CodeDuplicateCode, "supplier code "+sup.Code+" already exists")
	case err != nil:
		return Supplier{}, fmt.Errorf("supplier: update: %w", err)
	}
	s.record(ctx, "supplier:update", sup)
	return s.Get(ctx, sup.ID)
}

// Delete removes a supplier that no receipt or return refers to.
func (s *Service) Delete(ctx context.Context, id int64) error {
	used, err := s.repo.Referenced(ctx, id)
	if err != nil {
		return fmt.Errorf("supplier: check references: %w", err)
	}
	if used {
		return shared.Conflict(CodeSupplierInUse, fmt.Sprintf("supplier %d has purchasing documents", id))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return notFound(id)
		}
		return fmt.Errorf("supplier: delete: %w", err)
	}
	s.record(ctx, "supplier:delete", Supplier{ID: id})
	return nil
}

func (s *Service) record(ctx context.Context, action string, sup Supplier) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "supplier",
		EntityID: fmt.Sprintf("%d", sup.ID),
		Meta:     map[string]any{"code": sup.Code, "name": sup.Name},
	}); err != nil {
		s.logger.Warn("audit supplier", slog.String("action", action), slog.Any("error", err))
	}
}

func normalize(sup Supplier) Supplier {
	sup.Code = strings.ToUpper(strings.TrimSpace(sup.Code))
	sup.Name = strings.TrimSpace(sup.Name)
	sup.Phone = strings.TrimSpace(sup.Phone)
	sup.Email = strings.TrimSpace(sup.Email)
	sup.Address = strings.TrimSpace(sup.Address)
	return sup
}

func validate(sup Supplier) error {
	if sup.Code == "" {
		return shared.Validation(CodeInvalidSupplier, "supplier code is required")
	}
	if sup.Name == "" {
		return shared.Validation(CodeInvalidSupplier, "supplier name is required")
	}
	if sup.Email != "" {
		if _, err := mail.ParseAddress(sup.Email); err != nil {
			return shared.Validation(CodeInvalidSupplier, "supplier email is invalid")
		}
	}
	return nil
}

func notFound(id int64) error {
	return shared.NotFound(CodeSupplierNotFound, fmt.Sprintf("supplier %d not found", id))
}

package uom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

const consistencyTolerance = 1e-9

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// StrictConversions rejects edges contradicting an existing path.
	StrictConversions bool
}

// Service maintains the unit registry and serves graph snapshots.
type Service struct {
	repo   RepositoryPort
	cache  *SnapshotCache
	strict bool
	logger *slog.Logger
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache *SnapshotCache, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, strict: cfg.StrictConversions, logger: logger}
}

// ConvertResult is the outcome of a quantity conversion.
type ConvertResult struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Factor   float64 `json:"factor"`
	Quantity float64 `json:"quantity"`
	Result   float64 `json:"result"`
}

// CreateUnit registers a new unit.
func (s *Service) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	unit.Code = NormalizeCode(unit.Code)
	if unit.Code == "" {
		return Unit{}, shared.Validation(CodeInvalidCode, "unit code required")
	}
	if !unit.Dimension.Valid() {
		return Unit{}, shared.Validation(CodeInvalidDimension, "unknown dimension "+string(unit.Dimension))
	}
	if unit.Name == "" {
		unit.Name = unit.Code
	}
	if _, err := s.repo.GetUnit(ctx, unit.Code); err == nil {
		return Unit{}, shared.Conflict(CodeUnitExists, "unit "+unit.Code+" already exists")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Unit{}, fmt.Errorf("uom: get unit: %w", err)
	}
	if err := s.repo.InsertUnit(ctx, unit); err != nil {
		if shared.IsUniqueViolation(err) {
			return Unit{}, shared.Conflict(CodeUnitExists, "unit "+unit.Code+" already exists")
		}
		return Unit{}, fmt.Errorf("uom: insert unit: %w", err)
	}
	s.invalidate(ctx)
	return unit, nil
}

// UpdateUnit renames a unit or changes its dimension. The dimension is
// frozen once any conversion or inventory item references the unit.
func (s *Service) UpdateUnit(ctx context.Context, code string, update UnitUpdate) (Unit, error) {
	code = NormalizeCode(code)
	current, err := s.repo.GetUnit(ctx, code)
	if errors.Is(err, shared.ErrNotFound) {
		return Unit{}, shared.NotFound(CodeUnitNotFound, "unit "+code+" not found")
	}
	if err != nil {
		return Unit{}, fmt.Errorf("uom: get unit: %w", err)
	}
	if update.Name == "" {
		update.Name = current.Name
	}
	if update.Dimension == "" {
		update.Dimension = current.Dimension
	}
	if !update.Dimension.Valid() {
		return Unit{}, shared.Validation(CodeInvalidDimension, "unknown dimension "+string(update.Dimension))
	}
	if update.Dimension != current.Dimension {
		referenced, err := s.repo.UnitReferenced(ctx, code)
		if err != nil {
			return Unit{}, fmt.Errorf("uom: check references: %w", err)
		}
		if referenced {
			return Unit{}, shared.State(CodeDimensionLocked, "unit "+code+" is in use; dimension cannot change")
		}
	}
	if err := s.repo.UpdateUnit(ctx, code, update); err != nil {
		return Unit{}, fmt.Errorf("uom: update unit: %w", err)
	}
	s.invalidate(ctx)
	return Unit{Code: code, Name: update.Name, Dimension: update.Dimension}, nil
}

// CreateConversion registers the edge "1 From = Factor To".
func (s *Service) CreateConversion(ctx context.Context, conv Conversion) (Conversion, error) {
	conv.From, conv.To = NormalizeCode(conv.From), NormalizeCode(conv.To)
	if conv.From == "" || conv.To == "" || conv.From == conv.To {
		return Conversion{}, shared.Validation(CodeInvalidConversion, "conversion needs two distinct units")
	}
	if !(conv.Factor > 0) || math.IsInf(conv.Factor, 0) {
		return Conversion{}, shared.Validation(CodeInvalidFactor, "factor must be > 0")
	}
	graph, err := s.Graph(ctx)
	if err != nil {
		return Conversion{}, err
	}
	from, ok := graph.Unit(conv.From)
	if !ok {
		return Conversion{}, shared.NotFound(CodeUnitNotFound, "unit "+conv.From+" not found")
	}
	to, ok := graph.Unit(conv.To)
	if !ok {
		return Conversion{}, shared.NotFound(CodeUnitNotFound, "unit "+conv.To+" not found")
	}
	if from.Dimension != to.Dimension {
		return Conversion{}, shared.Validation(CodeDimensionMismatch, "units "+from.Code+" and "+to.Code+" measure different dimensions")
	}
	if _, ok := graph.Edge(conv.From, conv.To); ok {
		return Conversion{}, shared.Conflict(CodeConversionExists, "conversion "+conv.From+"->"+conv.To+" already exists")
	}
	if s.strict {
		if err := checkConsistent(graph, conv); err != nil {
			return Conversion{}, err
		}
	}
	if err := s.repo.InsertConversion(ctx, conv); err != nil {
		if shared.IsUniqueViolation(err) {
			return Conversion{}, shared.Conflict(CodeConversionExists, "conversion "+conv.From+"->"+conv.To+" already exists")
		}
		return Conversion{}, fmt.Errorf("uom: insert conversion: %w", err)
	}
	s.invalidate(ctx)
	return conv, nil
}

func checkConsistent(graph *Graph, conv Conversion) error {
	expected := conv.Factor
	if r := graph.FactorBetween(conv.From, conv.To, nil); r.Found {
		if !closeEnough(r.Factor, expected) {
			return inconsistent(conv, r.Factor)
		}
	}
	if r := graph.FactorBetween(conv.To, conv.From, nil); r.Found && r.Factor > 0 {
		if !closeEnough(1/r.Factor, expected) {
			return inconsistent(conv, 1/r.Factor)
		}
	}
	return nil
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= consistencyTolerance*math.Max(math.Abs(a), math.Abs(b))
}

func inconsistent(conv Conversion, existing float64) error {
	return shared.Validation(CodeConversionInconsistent,
		fmt.Sprintf("%s->%s factor %g contradicts existing path factor %g", conv.From, conv.To, conv.Factor, existing))
}

// ListUnits returns every unit ordered by code.
func (s *Service) ListUnits(ctx context.Context) ([]Unit, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Units, nil
}

// ListConversions returns every conversion edge.
func (s *Service) ListConversions(ctx context.Context) ([]Conversion, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Conversions, nil
}

// Graph returns an immutable snapshot of the registry.
func (s *Service) Graph(ctx context.Context) (*Graph, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return NewGraphFromSnapshot(snap), nil
}

// Convert expresses qty of unit from in unit to.
func (s *Service) Convert(ctx context.Context, from, to string, qty float64) (ConvertResult, error) {
	if qty < 0 {
		return ConvertResult{}, shared.Validation("INVALID_QTY", "quantity must be >= 0")
	}
	graph, err := s.Graph(ctx)
	if err != nil {
		return ConvertResult{}, err
	}
	unit, factor, err := graph.Convert(to, from, 0)
	if err != nil {
		return ConvertResult{}, err
	}
	base, _ := graph.Unit(to)
	return ConvertResult{
		From:     unit.Code,
		To:       base.Code,
		Factor:   factor,
		Quantity: qty,
		Result:   money.Round3(qty * factor),
	}, nil
}

func (s *Service) snapshot(ctx context.Context) (Snapshot, error) {
	snap, err := s.cache.Load(ctx, s.loadSnapshot)
	if err != nil {
		return Snapshot{}, fmt.Errorf("uom: load snapshot: %w", err)
	}
	return snap, nil
}

func (s *Service) loadSnapshot(ctx context.Context) (Snapshot, error) {
	units, err := s.repo.ListUnits(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	convs, err := s.repo.ListConversions(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Units: units, Conversions: convs}, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("uom cache invalidate", slog.Any("error", err))
	}
}

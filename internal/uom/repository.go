package uom

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// RepositoryPort abstracts registry persistence for the service.
type RepositoryPort interface {
	ListUnits(ctx context.Context) ([]Unit, error)
	ListConversions(ctx context.Context) ([]Conversion, error)
	GetUnit(ctx context.Context, code string) (Unit, error)
	InsertUnit(ctx context.Context, unit Unit) error
	UpdateUnit(ctx context.Context, code string, update UnitUpdate) error
	UnitReferenced(ctx context.Context, code string) (bool, error)
	GetConversion(ctx context.Context, from, to string) (Conversion, error)
	InsertConversion(ctx context.Context, conv Conversion) error
}

// Repository persists units and conversions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var errRepoNotInitialised = errors.New("uom repository not initialised")

func (r *Repository) ListUnits(ctx context.Context) ([]Unit, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT code, name, dimension FROM units_of_measure ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	units := []Unit{}
	for rows.Next() {
		var u Unit
		var dim string
		if err := rows.Scan(&u.Code, &u.Name, &dim); err != nil {
			return nil, err
		}
		u.Dimension = Dimension(dim)
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *Repository) ListConversions(ctx context.Context) ([]Conversion, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT from_code, to_code, factor FROM uom_conversions ORDER BY from_code, to_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	convs := []Conversion{}
	for rows.Next() {
		var c Conversion
		if err := rows.Scan(&c.From, &c.To, &c.Factor); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *Repository) GetUnit(ctx context.Context, code string) (Unit, error) {
	if r == nil || r.pool == nil {
		return Unit{}, errRepoNotInitialised
	}
	var u Unit
	var dim string
	err := r.pool.QueryRow(ctx, `SELECT code, name, dimension FROM units_of_measure WHERE code=$1`, code).Scan(&u.Code, &u.Name, &dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, shared.ErrNotFound
	}
	if err != nil {
		return Unit{}, err
	}
	u.Dimension = Dimension(dim)
	return u, nil
}

func (r *Repository) InsertUnit(ctx context.Context, unit Unit) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO units_of_measure (code, name, dimension, created_at, updated_at) VALUES ($1,$2,$3,NOW(),NOW())`,
		unit.Code, unit.Name, string(unit.Dimension))
	return err
}

func (r *Repository) UpdateUnit(ctx context.Context, code string, update UnitUpdate) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	tag, err := r.pool.Exec(ctx, `UPDATE units_of_measure SET name=$2, dimension=$3, updated_at=NOW() WHERE code=$1`,
		code, update.Name, string(update.Dimension))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) UnitReferenced(ctx context.Context, code string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errRepoNotInitialised
	}
	var referenced bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM uom_conversions WHERE from_code=$1 OR to_code=$1)
	OR EXISTS (SELECT 1 FROM inventory_items WHERE base_uom=$1)`, code).Scan(&referenced)
	return referenced, err
}

func (r *Repository) GetConversion(ctx context.Context, from, to string) (Conversion, error) {
	if r == nil || r.pool == nil {
		return Conversion{}, errRepoNotInitialised
	}
	var c Conversion
	err := r.pool.QueryRow(ctx, `SELECT from_code, to_code, factor FROM uom_conversions WHERE from_code=$1 AND to_code=$2`, from, to).
		Scan(&c.From, &c.To, &c.Factor)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversion{}, shared.ErrNotFound
	}
	return c, err
}

func (r *Repository) InsertConversion(ctx context.Context, conv Conversion) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO uom_conversions (from_code, to_code, factor, created_at) VALUES ($1,$2,$3,NOW())`,
		conv.From, conv.To, conv.Factor)
	return err
}

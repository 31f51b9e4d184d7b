// Package cashbook records cash movements caused by purchasing documents.
// Vouchers are written on the caller's transaction; a failed voucher rolls
// the whole posting back.
package cashbook

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// Kind tells money out from money in.
type Kind string

const (
	// KindPayment is cash paid to a supplier.
	KindPayment Kind = "PAYMENT"
	// KindReceipt is cash refunded by a supplier.
	KindReceipt Kind = "RECEIPT"
)

// CodeInvalidAmount is returned for non-positive voucher amounts.
const CodeInvalidAmount = "INVALID_VOUCHER_AMOUNT"

// Voucher is one cashbook entry.
type Voucher struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	Kind      Kind      `json:"kind"`
	RefType   string    `json:"refType"`
	RefID     int64     `json:"refId"`
	Amount    float64   `json:"amount"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TxRepository writes vouchers inside an open transaction.
type TxRepository interface {
	InsertVoucher(ctx context.Context, v Voucher) (int64, error)
}

// Service issues vouchers.
type Service struct {
	now func() time.Time
}

// NewService builds Service.
func NewService() *Service {
	return &Service{now: time.Now}
}

// CreatePaymentVoucher records amount paid out against refType/refID.
func (s *Service) CreatePaymentVoucher(ctx context.Context, tx TxRepository, refID int64, refType string, amount float64, note string) (Voucher, error) {
	return s.create(ctx, tx, KindPayment, refID, refType, amount, note)
}

// CreateReceiptVoucher records amount received against refType/refID.
func (s *Service) CreateReceiptVoucher(ctx context.Context, tx TxRepository, refID int64, refType string, amount float64, note string) (Voucher, error) {
	return s.create(ctx, tx, KindReceipt, refID, refType, amount, note)
}

func (s *Service) create(ctx context.Context, tx TxRepository, kind Kind, refID int64, refType string, amount float64, note string) (Voucher, error) {
	amount = money.Round2(amount)
	if !(amount > 0) || math.IsInf(amount, 0) {
		return Voucher{}, shared.Validation(CodeInvalidAmount, "voucher amount must be > 0")
	}
	v := Voucher{
		Number:    voucherNumber(kind),
		Kind:      kind,
		RefType:   refType,
		RefID:     refID,
		Amount:    amount,
		Note:      note,
		CreatedAt: s.now(),
	}
	id, err := tx.InsertVoucher(ctx, v)
	if err != nil {
		return Voucher{}, fmt.Errorf("cashbook: insert voucher: %w", err)
	}
	v.ID = id
	return v, nil
}

func voucherNumber(kind Kind) string {
	prefix := "PV"
	if kind == KindReceipt {
		prefix = "RV"
	}
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Repository reads vouchers from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByRef returns the vouchers issued for one document, oldest first.
func (r *Repository) ListByRef(ctx context.Context, refType string, refID int64) ([]Voucher, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("cashbook repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, kind, ref_type, ref_id, amount, note, created_at
FROM cashbook_vouchers WHERE ref_type=$1 AND ref_id=$2 ORDER BY id`, refType, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Voucher{}
	for rows.Next() {
		var v Voucher
		var kind string
		if err := rows.Scan(&v.ID, &v.Number, &kind, &v.RefType, &v.RefID, &v.Amount, &v.Note, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Kind = Kind(kind)
		out = append(out, v)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds voucher statements to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO cashbook_vouchers (number, kind, ref_type, ref_id, amount, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, v.Number, string(v.Kind), v.RefType, v.RefID, v.Amount, v.Note, v.CreatedAt).Scan(&id)
	return id, err
}

package purchasing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/cashbook"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/db"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	ListReceipts(ctx context.Context, filter ListFilter) ([]Receipt, int, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	ListReturns(ctx context.Context, filter ListFilter) ([]Return, int, error)
}

// TxRepository exposes transactional operations. Stock and Cashbook share
// the same transaction, so document rows, stock movements and vouchers
// commit together.
type TxRepository interface {
	SupplierExists(ctx context.Context, id int64) (bool, error)
	ItemBaseUOM(ctx context.Context, itemID int64) (string, error)

	InsertReceipt(ctx context.Context, r Receipt) (int64, error)
	UpdateReceipt(ctx context.Context, r Receipt) error
	GetReceiptForUpdate(ctx context.Context, id int64) (Receipt, error)
	DeleteReceiptLines(ctx context.Context, receiptID int64) error
	InsertReceiptLine(ctx context.Context, line ReceiptLine) (int64, error)

	InsertReturn(ctx context.Context, r Return) (int64, error)
	UpdateReturn(ctx context.Context, r Return) error
	GetReturnForUpdate(ctx context.Context, id int64) (Return, error)
	DeleteReturnLines(ctx context.Context, returnID int64) error
	InsertReturnLine(ctx context.Context, line ReturnLine) (int64, error)

	Stock() inventory.TxRepository
	Cashbook() cashbook.TxRepository
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var errRepoNotInitialised = errors.New("purchasing repository not initialised")

// queryer is satisfied by both the pool and an open transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction; item rows are
// serialised with explicit row locks.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	return db.WithTx(ctx, r.pool, db.PostingTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const receiptColumns = `id, number, supplier_id, receipt_date, global_discount_type, global_discount_value, shipping_fee,
sub_total, discount_amount, grand_total, amount_paid, debt, status, note, posted_at, created_at, updated_at`

const receiptLineColumns = `id, receipt_id, line_no, item_id, quantity, received_uom, conversion_to_base, base_qty, unit_price,
discount_type, discount_value, line_total, allocated_discount, lot, expiry_date`

const returnColumns = `id, number, supplier_id, discount_type, discount_value, total_goods, discount_amount,
total_after_discount, refund_amount, paid_amount, debt, status, note, posted_at, created_at, updated_at`

const returnLineColumns = `id, return_id, line_no, item_id, quantity, received_uom, conversion_to_base, base_qty, unit_price,
line_total_before_discount, allocated_discount, line_total_after_discount, refund_amount`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var r Receipt
	var discType, status string
	err := row.Scan(&r.ID, &r.Number, &r.SupplierID, &r.ReceiptDate, &discType, &r.GlobalDiscount.Value, &r.ShippingFee,
		&r.SubTotal, &r.DiscountAmount, &r.GrandTotal, &r.AmountPaid, &r.Debt, &status, &r.Note, &r.PostedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, shared.ErrNotFound
	}
	if err != nil {
		return Receipt{}, err
	}
	r.GlobalDiscount.Type = money.DiscountType(discType)
	r.Status = ReceiptStatus(status)
	return r, nil
}

func scanReturn(row pgx.Row) (Return, error) {
	var r Return
	var discType, status string
	err := row.Scan(&r.ID, &r.Number, &r.SupplierID, &discType, &r.Discount.Value, &r.TotalGoods, &r.DiscountAmount,
		&r.TotalAfterDiscount, &r.RefundAmount, &r.PaidAmount, &r.Debt, &status, &r.Note, &r.PostedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, shared.ErrNotFound
	}
	if err != nil {
		return Return{}, err
	}
	r.Discount.Type = money.DiscountType(discType)
	r.Status = ReturnStatus(status)
	return r, nil
}

func loadReceiptLines(ctx context.Context, q queryer, receiptID int64) ([]ReceiptLine, error) {
	rows, err := q.Query(ctx, `SELECT `+receiptLineColumns+` FROM purchase_receipt_lines WHERE receipt_id=$1 ORDER BY line_no, id`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []ReceiptLine{}
	for rows.Next() {
		var l ReceiptLine
		var discType string
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.LineNo, &l.ItemID, &l.Quantity, &l.ReceivedUOM, &l.ConversionToBase, &l.BaseQty, &l.UnitPrice,
			&discType, &l.Discount.Value, &l.LineTotal, &l.AllocatedDiscount, &l.Lot, &l.ExpiryDate); err != nil {
			return nil, err
		}
		l.Discount.Type = money.DiscountType(discType)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func loadReturnLines(ctx context.Context, q queryer, returnID int64) ([]ReturnLine, error) {
	rows, err := q.Query(ctx, `SELECT `+returnLineColumns+` FROM purchase_return_lines WHERE return_id=$1 ORDER BY line_no, id`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []ReturnLine{}
	for rows.Next() {
		var l ReturnLine
		if err := rows.Scan(&l.ID, &l.ReturnID, &l.LineNo, &l.ItemID, &l.Quantity, &l.ReceivedUOM, &l.ConversionToBase, &l.BaseQty, &l.UnitPrice,
			&l.LineTotalBeforeDiscount, &l.AllocatedDiscount, &l.LineTotalAfterDiscount, &l.RefundAmount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func getReceipt(ctx context.Context, q queryer, id int64, forUpdate bool) (Receipt, error) {
	sql := `SELECT ` + receiptColumns + ` FROM purchase_receipts WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	r, err := scanReceipt(q.QueryRow(ctx, sql, id))
	if err != nil {
		return Receipt{}, err
	}
	if r.Lines, err = loadReceiptLines(ctx, q, id); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

func getReturn(ctx context.Context, q queryer, id int64, forUpdate bool) (Return, error) {
	sql := `SELECT ` + returnColumns + ` FROM purchase_returns WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	r, err := scanReturn(q.QueryRow(ctx, sql, id))
	if err != nil {
		return Return{}, err
	}
	if r.Lines, err = loadReturnLines(ctx, q, id); err != nil {
		return Return{}, err
	}
	return r, nil
}

// GetReceipt returns a receipt with its lines.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	if r == nil || r.pool == nil {
		return Receipt{}, errRepoNotInitialised
	}
	return getReceipt(ctx, r.pool, id, false)
}

// GetReturn returns a return with its lines.
func (r *Repository) GetReturn(ctx context.Context, id int64) (Return, error) {
	if r == nil || r.pool == nil {
		return Return{}, errRepoNotInitialised
	}
	return getReturn(ctx, r.pool, id, false)
}

// ListReceipts returns receipt headers newest first with the total count.
func (r *Repository) ListReceipts(ctx context.Context, filter ListFilter) ([]Receipt, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, errRepoNotInitialised
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_receipts WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR supplier_id = $2)`,
		filter.Status, filter.SupplierID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM purchase_receipts
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR supplier_id = $2)
ORDER BY id DESC LIMIT $3 OFFSET $4`, filter.Status, filter.SupplierID, filter.PerPage, shared.Offset(filter.Page, filter.PerPage))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Receipt{}
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// ListReturns returns return headers newest first with the total count.
func (r *Repository) ListReturns(ctx context.Context, filter ListFilter) ([]Return, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, errRepoNotInitialised
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_returns WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR supplier_id = $2)`,
		filter.Status, filter.SupplierID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+returnColumns+` FROM purchase_returns
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR supplier_id = $2)
ORDER BY id DESC LIMIT $3 OFFSET $4`, filter.Status, filter.SupplierID, filter.PerPage, shared.Offset(filter.Page, filter.PerPage))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Return{}
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	return out, total, rows.Err()
}

func (t *txRepo) Stock() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func (t *txRepo) Cashbook() cashbook.TxRepository {
	return cashbook.NewTxRepository(t.tx)
}

func (t *txRepo) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (t *txRepo) ItemBaseUOM(ctx context.Context, itemID int64) (string, error) {
	var code string
	err := t.tx.QueryRow(ctx, `SELECT base_uom FROM inventory_items WHERE id=$1`, itemID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return code, err
}

func (t *txRepo) InsertReceipt(ctx context.Context, r Receipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_receipts (number, supplier_id, receipt_date, global_discount_type, global_discount_value,
shipping_fee, sub_total, discount_amount, grand_total, amount_paid, debt, status, note, posted_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW()) RETURNING id`,
		r.Number, r.SupplierID, r.ReceiptDate, discountType(r.GlobalDiscount), r.GlobalDiscount.Value,
		r.ShippingFee, r.SubTotal, r.DiscountAmount, r.GrandTotal, r.AmountPaid, r.Debt, string(r.Status), r.Note, r.PostedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateReceipt(ctx context.Context, r Receipt) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_receipts SET supplier_id=$2, receipt_date=$3, global_discount_type=$4, global_discount_value=$5,
shipping_fee=$6, sub_total=$7, discount_amount=$8, grand_total=$9, amount_paid=$10, debt=$11, status=$12, note=$13, posted_at=$14, updated_at=NOW()
WHERE id=$1`,
		r.ID, r.SupplierID, r.ReceiptDate, discountType(r.GlobalDiscount), r.GlobalDiscount.Value,
		r.ShippingFee, r.SubTotal, r.DiscountAmount, r.GrandTotal, r.AmountPaid, r.Debt, string(r.Status), r.Note, r.PostedAt)
	return err
}

func (t *txRepo) GetReceiptForUpdate(ctx context.Context, id int64) (Receipt, error) {
	return getReceipt(ctx, t.tx, id, true)
}

func (t *txRepo) DeleteReceiptLines(ctx context.Context, receiptID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_receipt_lines WHERE receipt_id=$1`, receiptID)
	return err
}

func (t *txRepo) InsertReceiptLine(ctx context.Context, l ReceiptLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_receipt_lines (receipt_id, line_no, item_id, quantity, received_uom, conversion_to_base,
base_qty, unit_price, discount_type, discount_value, line_total, allocated_discount, lot, expiry_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		l.ReceiptID, l.LineNo, l.ItemID, l.Quantity, l.ReceivedUOM, l.ConversionToBase,
		l.BaseQty, l.UnitPrice, discountType(l.Discount), l.Discount.Value, l.LineTotal, l.AllocatedDiscount, l.Lot, l.ExpiryDate).Scan(&id)
	return id, err
}

func (t *txRepo) InsertReturn(ctx context.Context, r Return) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_returns (number, supplier_id, discount_type, discount_value, total_goods, discount_amount,
total_after_discount, refund_amount, paid_amount, debt, status, note, posted_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW()) RETURNING id`,
		r.Number, r.SupplierID, discountType(r.Discount), r.Discount.Value, r.TotalGoods, r.DiscountAmount,
		r.TotalAfterDiscount, r.RefundAmount, r.PaidAmount, r.Debt, string(r.Status), r.Note, r.PostedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateReturn(ctx context.Context, r Return) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_returns SET supplier_id=$2, discount_type=$3, discount_value=$4, total_goods=$5, discount_amount=$6,
total_after_discount=$7, refund_amount=$8, paid_amount=$9, debt=$10, status=$11, note=$12, posted_at=$13, updated_at=NOW()
WHERE id=$1`,
		r.ID, r.SupplierID, discountType(r.Discount), r.Discount.Value, r.TotalGoods, r.DiscountAmount,
		r.TotalAfterDiscount, r.RefundAmount, r.PaidAmount, r.Debt, string(r.Status), r.Note, r.PostedAt)
	return err
}

func (t *txRepo) GetReturnForUpdate(ctx context.Context, id int64) (Return, error) {
	return getReturn(ctx, t.tx, id, true)
}

func (t *txRepo) DeleteReturnLines(ctx context.Context, returnID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_return_lines WHERE return_id=$1`, returnID)
	return err
}

func (t *txRepo) InsertReturnLine(ctx context.Context, l ReturnLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_return_lines (return_id, line_no, item_id, quantity, received_uom, conversion_to_base,
base_qty, unit_price, line_total_before_discount, allocated_discount, line_total_after_discount, refund_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		l.ReturnID, l.LineNo, l.ItemID, l.Quantity, l.ReceivedUOM, l.ConversionToBase,
		l.BaseQty, l.UnitPrice, l.LineTotalBeforeDiscount, l.AllocatedDiscount, l.LineTotalAfterDiscount, l.RefundAmount).Scan(&id)
	return id, err
}

func discountType(d money.Discount) string {
	if d.Type == "" {
		return string(money.DiscountAmount)
	}
	return string(d.Type)
}

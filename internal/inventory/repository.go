package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/db"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// TxRepository exposes the row-locked operations the ledger runs inside a
// posting transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	UpdateItemStock(ctx context.Context, item Item) error
	InsertTransaction(ctx context.Context, t Transaction) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	ReconcileRows(ctx context.Context) ([]ReconcileRow, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the inventory statements to an open transaction so
// other modules can post stock inside their own transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

var errRepoNotInitialised = errors.New("inventory repository not initialised")

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	return db.WithTx(ctx, r.pool, db.PostingTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	if r == nil || r.pool == nil {
		return Item{}, errRepoNotInitialised
	}
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, name, base_uom, quantity, avg_cost, updated_at FROM inventory_items WHERE id=$1`, id).
		Scan(&item.ID, &item.Name, &item.BaseUOM, &item.Quantity, &item.AvgCost, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return item, err
}

func (r *Repository) InsertItem(ctx context.Context, item Item) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errRepoNotInitialised
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO inventory_items (name, base_uom, quantity, avg_cost, created_at, updated_at)
VALUES ($1,$2,0,0,NOW(),NOW()) RETURNING id`, item.Name, item.BaseUOM).Scan(&id)
	return id, err
}

func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, quantity, action, unit_cost, line_cost, before_qty, after_qty, ref_type, ref_id, note, created_at
FROM inventory_transactions
WHERE ($1 = 0 OR item_id = $1)
  AND ($2 = '' OR ref_type = $2)
  AND ($3 = 0 OR ref_id = $3)
  AND created_at BETWEEN COALESCE($4, '-infinity'::timestamptz) AND COALESCE($5, 'infinity'::timestamptz)
ORDER BY created_at ASC, id ASC
LIMIT $6`, filter.ItemID, filter.RefType, filter.RefID, nullTime(filter.From), nullTime(filter.To), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	txs := []Transaction{}
	for rows.Next() {
		var t Transaction
		var action string
		if err := rows.Scan(&t.ID, &t.ItemID, &t.Quantity, &action, &t.UnitCost, &t.LineCost, &t.BeforeQty, &t.AfterQty, &t.RefType, &t.RefID, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Action = Action(action)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *Repository) ReconcileRows(ctx context.Context) ([]ReconcileRow, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.quantity,
       last.after_qty IS NOT NULL,
       COALESCE(last.after_qty, 0),
       COALESCE(net.qty, 0)
FROM inventory_items i
LEFT JOIN LATERAL (
    SELECT t.after_qty FROM inventory_transactions t WHERE t.item_id = i.id ORDER BY t.id DESC LIMIT 1
) last ON TRUE
LEFT JOIN LATERAL (
    SELECT SUM(CASE WHEN t.action = 'IMPORT' THEN t.quantity ELSE -t.quantity END) AS qty
    FROM inventory_transactions t WHERE t.item_id = i.id
) net ON TRUE
ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ReconcileRow{}
	for rows.Next() {
		var row ReconcileRow
		if err := rows.Scan(&row.ItemID, &row.Quantity, &row.HasHistory, &row.LastAfterQty, &row.NetQty); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	var item Item
	err := r.tx.QueryRow(ctx, `SELECT id, name, base_uom, quantity, avg_cost, updated_at FROM inventory_items WHERE id=$1 FOR UPDATE`, itemID).
		Scan(&item.ID, &item.Name, &item.BaseUOM, &item.Quantity, &item.AvgCost, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return item, err
}

func (r *txRepository) UpdateItemStock(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET quantity=$2, avg_cost=$3, updated_at=NOW() WHERE id=$1`, item.ID, item.Quantity, item.AvgCost)
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_transactions (item_id, quantity, action, unit_cost, line_cost, before_qty, after_qty, ref_type, ref_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`, t.ItemID, t.Quantity, string(t.Action), t.UnitCost, t.LineCost, t.BeforeQty, t.AfterQty, t.RefType, t.RefID, t.Note, t.CreatedAt).Scan(&id)
	return id, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
)

const defaultTransactionLimit = 200

// Ledger applies stock movements on the caller's transaction. It holds no
// connection of its own, so every movement commits or rolls back together
// with the document that caused it.
type Ledger struct {
	now func() time.Time
}

// NewLedger builds a Ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Import locks the item row, applies the import and records the movement.
func (l *Ledger) Import(ctx context.Context, tx TxRepository, m Movement) (Transaction, error) {
	item, err := lockItem(ctx, tx, m.ItemID)
	if err != nil {
		return Transaction{}, err
	}
	rec, err := ApplyImport(&item, m.BaseQty, m.UnitCostBase)
	if err != nil {
		return Transaction{}, err
	}
	return l.persist(ctx, tx, item, rec, m)
}

// Out locks the item row, applies the outflow and records the movement.
func (l *Ledger) Out(ctx context.Context, tx TxRepository, m Movement) (Transaction, error) {
	item, err := lockItem(ctx, tx, m.ItemID)
	if err != nil {
		return Transaction{}, err
	}
	rec, err := ApplyOut(&item, m.BaseQty)
	if err != nil {
		return Transaction{}, err
	}
	return l.persist(ctx, tx, item, rec, m)
}

// Available locks the item row and fails with INSUFFICIENT_STOCK when it
// cannot cover baseQty. Nothing is written.
func (l *Ledger) Available(ctx context.Context, tx TxRepository, itemID int64, baseQty float64) error {
	item, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return err
	}
	return checkAvailable(item, baseQty)
}

// Lock takes the row locks of every item in ascending id order and returns
// the locked rows. Documents touching several items lock them up front so
// two postings never wait on each other in opposite order.
func (l *Ledger) Lock(ctx context.Context, tx TxRepository, itemIDs []int64) (map[int64]Item, error) {
	ids := append([]int64(nil), itemIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	items := make(map[int64]Item, len(ids))
	for _, id := range ids {
		if _, done := items[id]; done {
			continue
		}
		item, err := lockItem(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		items[id] = item
	}
	return items, nil
}

func (l *Ledger) persist(ctx context.Context, tx TxRepository, item Item, rec Transaction, m Movement) (Transaction, error) {
	rec.RefType = m.RefType
	rec.RefID = m.RefID
	rec.Note = m.Note
	rec.CreatedAt = l.now()
	if err := tx.UpdateItemStock(ctx, item); err != nil {
		return Transaction{}, fmt.Errorf("inventory: update item %d: %w", item.ID, err)
	}
	id, err := tx.InsertTransaction(ctx, rec)
	if err != nil {
		return Transaction{}, fmt.Errorf("inventory: insert transaction: %w", err)
	}
	rec.ID = id
	return rec, nil
}

func lockItem(ctx context.Context, tx TxRepository, itemID int64) (Item, error) {
	item, err := tx.GetItemForUpdate(ctx, itemID)
	if errors.Is(err, shared.ErrNotFound) {
		return Item{}, shared.NotFound(CodeItemNotFound, fmt.Sprintf("item %d not found", itemID))
	}
	if err != nil {
		return Item{}, fmt.Errorf("inventory: lock item %d: %w", itemID, err)
	}
	return item, nil
}

// UnitDirectory resolves units for item validation.
type UnitDirectory interface {
	Graph(ctx context.Context) (*uom.Graph, error)
}

// Service serves the item directory and the stock card.
type Service struct {
	repo   RepositoryPort
	units  UnitDirectory
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, units UnitDirectory, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, units: units, audit: audit, logger: logger}
}

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Item{}, shared.NotFound(CodeItemNotFound, fmt.Sprintf("item %d not found", id))
	}
	if err != nil {
		return Item{}, fmt.Errorf("inventory: get item: %w", err)
	}
	return item, nil
}

// CreateItem registers an item with zero stock. Its base unit must exist.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Item{}, shared.Validation(CodeInvalidItem, "item name required")
	}
	base := uom.NormalizeCode(input.BaseUOM)
	if s.units != nil {
		graph, err := s.units.Graph(ctx)
		if err != nil {
			return Item{}, err
		}
		if _, ok := graph.Unit(base); !ok {
			return Item{}, shared.Validation(CodeBaseUOMNotFound, "base unit "+base+" not found")
		}
	}
	item := Item{Name: name, BaseUOM: base}
	id, err := s.repo.InsertItem(ctx, item)
	if err != nil {
		return Item{}, fmt.Errorf("inventory: insert item: %w", err)
	}
	item.ID = id
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "inventory:item:create",
			Entity:   "inventory_item",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"name": name, "base_uom": base},
		}); err != nil {
			s.logger.Warn("audit item create", slog.Any("error", err))
		}
	}
	return item, nil
}

// ListTransactions returns the stock card ordered oldest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.Limit <= 0 || filter.Limit > defaultTransactionLimit {
		filter.Limit = defaultTransactionLimit
	}
	txs, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("inventory: list transactions: %w", err)
	}
	return txs, nil
}

// Reconcile lists items whose stored quantity no longer matches their
// movement history.
func (s *Service) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	rows, err := s.repo.ReconcileRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory: reconcile rows: %w", err)
	}
	out := []Discrepancy{}
	for _, row := range rows {
		if d, bad := Reconcile(row); bad {
			out = append(out, d)
		}
	}
	return out, nil
}

package purchasing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/cashbook"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/lock"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
)

// UnitGraph exposes the unit registry snapshot.
type UnitGraph interface {
	Graph(ctx context.Context) (*uom.Graph, error)
}

// LedgerPort applies stock movements on the posting transaction.
type LedgerPort interface {
	Lock(ctx context.Context, tx inventory.TxRepository, itemIDs []int64) (map[int64]inventory.Item, error)
	Import(ctx context.Context, tx inventory.TxRepository, m inventory.Movement) (inventory.Transaction, error)
	Out(ctx context.Context, tx inventory.TxRepository, m inventory.Movement) (inventory.Transaction, error)
}

// CashbookPort issues vouchers on the posting transaction.
type CashbookPort interface {
	CreatePaymentVoucher(ctx context.Context, tx cashbook.TxRepository, refID int64, refType string, amount float64, note string) (cashbook.Voucher, error)
	CreateReceiptVoucher(ctx context.Context, tx cashbook.TxRepository, refID int64, refType string, amount float64, note string) (cashbook.Voucher, error)
}

// IdempotencyPort claims request keys.
type IdempotencyPort interface {
	Claim(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// DocumentLocker guards a document against concurrent mutation across
// processes.
type DocumentLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Deps groups collaborators of Service. Audit, Idempotency, Locker and
// Metrics are optional.
type Deps struct {
	Repo        RepositoryPort
	Units       UnitGraph
	Ledger      LedgerPort
	Cashbook    CashbookPort
	Audit       shared.AuditPort
	Idempotency IdempotencyPort
	Locker      DocumentLocker
	Metrics     *Metrics
	LockTTL     time.Duration
	Logger      *slog.Logger
}

// Service orchestrates purchase receipts and returns. Every operation runs
// in one transaction: document rows, stock movements and cashbook vouchers
// commit together or not at all.
type Service struct {
	repo        RepositoryPort
	units       UnitGraph
	ledger      LedgerPort
	cashbook    CashbookPort
	audit       shared.AuditPort
	idempotency IdempotencyPort
	locker      DocumentLocker
	metrics     *Metrics
	lockTTL     time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the purchasing service.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 30 * time.Second
	}
	return &Service{
		repo:        d.Repo,
		units:       d.Units,
		ledger:      d.Ledger,
		cashbook:    d.Cashbook,
		audit:       d.Audit,
		idempotency: d.Idempotency,
		locker:      d.Locker,
		metrics:     d.Metrics,
		lockTTL:     d.LockTTL,
		logger:      d.Logger,
		now:         time.Now,
	}
}

// CreateReceipt saves a receipt as DRAFT or, when in.Status is POSTED,
// saves and posts it in the same transaction.
func (s *Service) CreateReceipt(ctx context.Context, in ReceiptInput) (rec Receipt, err error) {
	ctx, end := s.startOp(ctx, "receipt", "create", 0)
	defer end(&err)

	if err := validateReceiptInput(in); err != nil {
		return Receipt{}, err
	}
	graph, err := s.graph(ctx)
	if err != nil {
		return Receipt{}, err
	}
	release, err := s.claim(ctx, in.IdempotencyKey, "purchasing.receipt")
	if err != nil {
		return Receipt{}, err
	}
	defer func() { release(err) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.requireSupplier(ctx, tx, in.SupplierID); err != nil {
			return err
		}
		lines, err := s.resolveReceiptLines(ctx, tx, graph, in.Lines)
		if err != nil {
			return err
		}
		rec = Receipt{
			Number:         defaultString(in.Number, generateNumber("GR")),
			SupplierID:     in.SupplierID,
			ReceiptDate:    defaultTime(in.ReceiptDate, s.now()),
			GlobalDiscount: in.GlobalDiscount,
			ShippingFee:    money.Round2(in.ShippingFee),
			AmountPaid:     money.Round2(in.AmountPaid),
			Status:         ReceiptDraft,
			Note:           in.Note,
			Lines:          lines,
		}
		if err := s.priceReceipt(&rec); err != nil {
			return err
		}
		id, err := tx.InsertReceipt(ctx, rec)
		if err != nil {
			return fmt.Errorf("purchasing: insert receipt: %w", err)
		}
		rec.ID = id
		if err := insertReceiptLines(ctx, tx, &rec); err != nil {
			return err
		}
		if in.Status == ReceiptPosted {
			return s.postReceipt(ctx, tx, &rec)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, "purchasing:receipt:create", "purchase_receipt", rec.ID, map[string]any{
		"number": rec.Number, "status": rec.Status, "grand_total": rec.GrandTotal,
	})
	return rec, nil
}

// UpdateReceipt replaces the header and lines of a DRAFT receipt. When
// in.Status is POSTED the receipt is posted afterwards in the same
// transaction.
func (s *Service) UpdateReceipt(ctx context.Context, id int64, in ReceiptInput) (rec Receipt, err error) {
	ctx, end := s.startOp(ctx, "receipt", "update", id)
	defer end(&err)

	if err := validateReceiptInput(in); err != nil {
		return Receipt{}, err
	}
	graph, err := s.graph(ctx)
	if err != nil {
		return Receipt{}, err
	}
	unlock, err := s.lockDocument(ctx, "receipt", id)
	if err != nil {
		return Receipt{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadReceipt(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != ReceiptDraft {
			return shared.State(CodeOnlyDraftUpdate, fmt.Sprintf("receipt %s is %s", current.Number, current.Status))
		}
		if err := s.requireSupplier(ctx, tx, in.SupplierID); err != nil {
			return err
		}
		lines, err := s.resolveReceiptLines(ctx, tx, graph, in.Lines)
		if err != nil {
			return err
		}
		rec = current
		rec.SupplierID = in.SupplierID
		rec.ReceiptDate = defaultTime(in.ReceiptDate, current.ReceiptDate)
		rec.GlobalDiscount = in.GlobalDiscount
		rec.ShippingFee = money.Round2(in.ShippingFee)
		rec.AmountPaid = money.Round2(in.AmountPaid)
		rec.Note = in.Note
		rec.Lines = lines
		if err := s.priceReceipt(&rec); err != nil {
			return err
		}
		if err := tx.DeleteReceiptLines(ctx, id); err != nil {
			return fmt.Errorf("purchasing: delete receipt lines: %w", err)
		}
		if err := insertReceiptLines(ctx, tx, &rec); err != nil {
			return err
		}
		if in.Status == ReceiptPosted {
			return s.postReceipt(ctx, tx, &rec)
		}
		if err := tx.UpdateReceipt(ctx, rec); err != nil {
			return fmt.Errorf("purchasing: update receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, "purchasing:receipt:update", "purchase_receipt", id, map[string]any{"status": rec.Status})
	return rec, nil
}

// PostReceipt applies a DRAFT receipt's stock and settles its amount paid.
func (s *Service) PostReceipt(ctx context.Context, id int64) (rec Receipt, err error) {
	ctx, end := s.startOp(ctx, "receipt", "post", id)
	defer end(&err)

	unlock, err := s.lockDocument(ctx, "receipt", id)
	if err != nil {
		return Receipt{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadReceipt(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != ReceiptDraft {
			return shared.State(CodeOnlyDraftPost, fmt.Sprintf("receipt %s is %s", current.Number, current.Status))
		}
		rec = current
		if err := s.priceReceipt(&rec); err != nil {
			return err
		}
		return s.postReceipt(ctx, tx, &rec)
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, "purchasing:receipt:post", "purchase_receipt", id, map[string]any{
		"number": rec.Number, "status": rec.Status, "debt": rec.Debt,
	})
	return rec, nil
}

// PayReceipt settles part of a posted receipt's debt. The grand total is
// recomputed from the stored lines rather than read from the header.
func (s *Service) PayReceipt(ctx context.Context, id int64, amount float64) (rec Receipt, err error) {
	ctx, end := s.startOp(ctx, "receipt", "pay", id)
	defer end(&err)

	unlock, err := s.lockDocument(ctx, "receipt", id)
	if err != nil {
		return Receipt{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadReceipt(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != ReceiptPosted && current.Status != ReceiptOwing {
			return shared.State(CodeOnlyOwingOrPostedPay, fmt.Sprintf("receipt %s is %s", current.Number, current.Status))
		}
		totals, err := computeReceiptTotals(current.Lines, current.GlobalDiscount, current.ShippingFee)
		if err != nil {
			return err
		}
		remaining := debt(totals.GrandTotal, current.AmountPaid)
		if remaining == 0 {
			return shared.Validation(CodeNoRemaining, fmt.Sprintf("receipt %s is fully paid", current.Number))
		}
		add := money.Round2(amount)
		if !(add > 0) || !finite(add) {
			return shared.Validation(CodeInvalidPayAmount, "payment amount must be > 0")
		}
		if add > remaining {
			return shared.Validation(CodeOverpay, fmt.Sprintf("payment %.2f exceeds remaining %.2f", add, remaining))
		}
		if _, err := s.cashbook.CreatePaymentVoucher(ctx, tx.Cashbook(), current.ID, RefTypeReceipt, add,
			"Payment for receipt "+current.Number); err != nil {
			return err
		}
		rec = current
		applyReceiptTotals(&rec, totals)
		rec.AmountPaid = money.Sum(current.AmountPaid, add)
		settleReceipt(&rec)
		if err := tx.UpdateReceipt(ctx, rec); err != nil {
			return fmt.Errorf("purchasing: update receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, "purchasing:receipt:pay", "purchase_receipt", id, map[string]any{
		"amount": money.Round2(amount), "debt": rec.Debt, "status": rec.Status,
	})
	return rec, nil
}

// CancelReceipt moves a DRAFT receipt to CANCELLED. No stock is touched.
func (s *Service) CancelReceipt(ctx context.Context, id int64) (rec Receipt, err error) {
	ctx, end := s.startOp(ctx, "receipt", "cancel", id)
	defer end(&err)

	unlock, err := s.lockDocument(ctx, "receipt", id)
	if err != nil {
		return Receipt{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadReceipt(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != ReceiptDraft {
			return shared.State(CodeOnlyDraftCancel, fmt.Sprintf("receipt %s is %s", current.Number, current.Status))
		}
		rec = current
		rec.Status = ReceiptCancelled
		if err := tx.UpdateReceipt(ctx, rec); err != nil {
			return fmt.Errorf("purchasing: update receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, "purchasing:receipt:cancel", "purchase_receipt", id, nil)
	return rec, nil
}

// GetReceipt returns a receipt with its lines.
func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	rec, err := s.repo.GetReceipt(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Receipt{}, shared.NotFound(CodeReceiptNotFound, fmt.Sprintf("receipt %d not found", id))
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("purchasing: get receipt: %w", err)
	}
	return rec, nil
}

// ListReceipts returns one page of receipt headers.
func (s *Service) ListReceipts(ctx context.Context, filter ListFilter) ([]Receipt, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.ListReceipts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("purchasing: list receipts: %w", err)
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// postReceipt imports every line into stock, settles AmountPaid with a
// payment voucher and writes the header. The caller has priced rec.
func (s *Service) postReceipt(ctx context.Context, tx TxRepository, rec *Receipt) error {
	stock := tx.Stock()
	if _, err := s.ledger.Lock(ctx, stock, receiptItemIDs(rec.Lines)); err != nil {
		return err
	}
	for _, line := range rec.Lines {
		_, err := s.ledger.Import(ctx, stock, inventory.Movement{
			ItemID:       line.ItemID,
			BaseQty:      line.BaseQty,
			UnitCostBase: line.UnitPrice / line.ConversionToBase,
			RefType:      RefTypeReceipt,
			RefID:        rec.ID,
			Note:         rec.Number,
		})
		if err != nil {
			return err
		}
	}
	if rec.AmountPaid > 0 {
		if _, err := s.cashbook.CreatePaymentVoucher(ctx, tx.Cashbook(), rec.ID, RefTypeReceipt, rec.AmountPaid,
			"Payment for receipt "+rec.Number); err != nil {
			return err
		}
	}
	now := s.now()
	rec.PostedAt = &now
	settleReceipt(rec)
	if err := tx.UpdateReceipt(ctx, *rec); err != nil {
		return fmt.Errorf("purchasing: update receipt: %w", err)
	}
	return nil
}

// priceReceipt recomputes totals from lines and checks the amount paid.
func (s *Service) priceReceipt(rec *Receipt) error {
	totals, err := computeReceiptTotals(rec.Lines, rec.GlobalDiscount, rec.ShippingFee)
	if err != nil {
		return err
	}
	applyReceiptTotals(rec, totals)
	if rec.AmountPaid > rec.GrandTotal {
		return shared.Validation(CodeOverpay, fmt.Sprintf("amount paid %.2f exceeds grand total %.2f", rec.AmountPaid, rec.GrandTotal))
	}
	return nil
}

// settleReceipt derives debt and status from the posted totals.
func settleReceipt(rec *Receipt) {
	rec.Debt = debt(rec.GrandTotal, rec.AmountPaid)
	if rec.Debt == 0 {
		rec.Status = ReceiptPaid
	} else {
		rec.Status = ReceiptOwing
	}
}

// resolveReceiptLines looks up each line's item, resolves its unit and
// factor, and rejects repeated (item, unit, lot) triples.
func (s *Service) resolveReceiptLines(ctx context.Context, tx TxRepository, graph *uom.Graph, inputs []ReceiptLineInput) ([]ReceiptLine, error) {
	lines := make([]ReceiptLine, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		unit, factor, err := s.resolveUnit(ctx, tx, graph, in.ItemID, in.ReceivedUOM, in.ConversionToBase)
		if err != nil {
			return nil, err
		}
		lot := strings.TrimSpace(in.Lot)
		key := fmt.Sprintf("%d|%s|%s", in.ItemID, unit.Code, lot)
		if _, dup := seen[key]; dup {
			return nil, shared.Validationf(CodeDuplicateLotAt, "item, unit and lot repeat an earlier line", i)
		}
		seen[key] = struct{}{}
		lines = append(lines, ReceiptLine{
			LineNo:           i,
			ItemID:           in.ItemID,
			Quantity:         money.Round3(in.Quantity),
			ReceivedUOM:      unit.Code,
			ConversionToBase: factor,
			BaseQty:          money.MulRound(money.Round3(in.Quantity), factor, 3),
			UnitPrice:        money.Round2(in.UnitPrice),
			Discount:         in.Discount,
			Lot:              lot,
			ExpiryDate:       in.ExpiryDate,
		})
	}
	return lines, nil
}

// resolveUnit converts an item's received unit into its base unit. A
// missing path surfaces as UOM_CONVERSION_NOT_FOUND, never as a factor.
func (s *Service) resolveUnit(ctx context.Context, tx TxRepository, graph *uom.Graph, itemID int64, received string, override float64) (uom.Unit, float64, error) {
	base, err := tx.ItemBaseUOM(ctx, itemID)
	if errors.Is(err, shared.ErrNotFound) {
		return uom.Unit{}, 0, shared.NotFound(CodeItemNotFound, fmt.Sprintf("item %d not found", itemID))
	}
	if err != nil {
		return uom.Unit{}, 0, fmt.Errorf("purchasing: item base unit: %w", err)
	}
	unit, factor, err := graph.Convert(base, received, override)
	if err != nil {
		return uom.Unit{}, 0, err
	}
	factor = money.RoundFactor(factor)
	if !(factor > 0) || !finite(factor) {
		return uom.Unit{}, 0, shared.Validation(uom.CodeConversionNotFound, "no usable conversion to "+base)
	}
	return unit, factor, nil
}

func insertReceiptLines(ctx context.Context, tx TxRepository, rec *Receipt) error {
	for i := range rec.Lines {
		rec.Lines[i].ReceiptID = rec.ID
		id, err := tx.InsertReceiptLine(ctx, rec.Lines[i])
		if err != nil {
			return fmt.Errorf("purchasing: insert receipt line: %w", err)
		}
		rec.Lines[i].ID = id
	}
	return nil
}

func (s *Service) loadReceipt(ctx context.Context, tx TxRepository, id int64) (Receipt, error) {
	rec, err := tx.GetReceiptForUpdate(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Receipt{}, shared.NotFound(CodeReceiptNotFound, fmt.Sprintf("receipt %d not found", id))
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("purchasing: load receipt: %w", err)
	}
	return rec, nil
}

func (s *Service) requireSupplier(ctx context.Context, tx TxRepository, id int64) error {
	ok, err := tx.SupplierExists(ctx, id)
	if err != nil {
		return fmt.Errorf("purchasing: supplier lookup: %w", err)
	}
	if !ok {
		return shared.NotFound(CodeSupplierNotFound, fmt.Sprintf("supplier %d not found", id))
	}
	return nil
}

func (s *Service) graph(ctx context.Context) (*uom.Graph, error) {
	graph, err := s.units.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("purchasing: load units: %w", err)
	}
	return graph, nil
}

// claim reserves an idempotency key. The returned function frees the key
// again when the operation failed, so the client may resubmit.
func (s *Service) claim(ctx context.Context, key, module string) (func(error), error) {
	if key == "" || s.idempotency == nil {
		return func(error) {}, nil
	}
	if err := s.idempotency.Claim(ctx, module, key); err != nil {
		return nil, err
	}
	return func(opErr error) {
		if opErr == nil {
			return
		}
		if err := s.idempotency.Release(context.WithoutCancel(ctx), module, key); err != nil {
			s.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", err))
		}
	}, nil
}

func (s *Service) lockDocument(ctx context.Context, docType string, id int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Obtain(ctx, shared.DocumentLockKey(docType, id), s.lockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, shared.Conflict(CodeDocumentLocked, fmt.Sprintf("%s %d is being processed", docType, id))
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", id), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func receiptItemIDs(lines []ReceiptLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	return ids
}

func generateNumber(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultTime(value, fallback time.Time) time.Time {
	if value.IsZero() {
		return fallback
	}
	return value
}

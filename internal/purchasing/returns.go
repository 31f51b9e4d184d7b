package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
)

// CreateReturn saves a purchase return as DRAFT or, when in.Status is
// POSTED, saves it and takes the goods out of stock in one transaction.
func (s *Service) CreateReturn(ctx context.Context, in ReturnInput) (ret Return, err error) {
	ctx, end := s.startOp(ctx, "return", "create", 0)
	defer end(&err)

	if err := validateReturnInput(in); err != nil {
		return Return{}, err
	}
	graph, err := s.graph(ctx)
	if err != nil {
		return Return{}, err
	}
	release, err := s.claim(ctx, in.IdempotencyKey, "purchasing.return")
	if err != nil {
		return Return{}, err
	}
	defer func() { release(err) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.requireSupplier(ctx, tx, in.SupplierID); err != nil {
			return err
		}
		lines, err := s.resolveReturnLines(ctx, tx, graph, in.Lines)
		if err != nil {
			return err
		}
		ret = Return{
			Number:     defaultString(in.Number, generateNumber("RT")),
			SupplierID: in.SupplierID,
			Discount:   in.Discount,
			PaidAmount: money.Round2(in.PaidAmount),
			Status:     ReturnDraft,
			Note:       in.Note,
			Lines:      lines,
		}
		if err := priceReturn(&ret); err != nil {
			return err
		}
		id, err := tx.InsertReturn(ctx, ret)
		if err != nil {
			return fmt.Errorf("purchasing: insert return: %w", err)
		}
		ret.ID = id
		if err := insertReturnLines(ctx, tx, &ret); err != nil {
			return err
		}
		if in.Status == ReturnPosted {
			return s.postReturn(ctx, tx, &ret)
		}
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, "purchasing:return:create", "purchase_return", ret.ID, map[string]any{
		"number": ret.Number, "status": ret.Status, "refund_amount": ret.RefundAmount,
	})
	return ret, nil
}

// UpdateReturn replaces a DRAFT return. On a POSTED return only the paid
// amount may move, and only upwards; the increase is settled with a
// cashbook voucher.
func (s *Service) UpdateReturn(ctx context.Context, id int64, in ReturnInput) (ret Return, err error) {
	ctx, end := s.startOp(ctx, "return", "update", id)
	defer end(&err)

	unlock, err := s.lockDocument(ctx, "return", id)
	if err != nil {
		return Return{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadReturn(ctx, tx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case ReturnPosted:
			ret, err = s.updatePostedReturn(ctx, tx, current, in)
			return err
		case ReturnDraft:
		default:
			return shared.State(CodeOnlyDraftUpdate, fmt.Sprintf("return %s is %s", current.Number, current.Status))
		}

		if err := validateReturnInput(in); err != nil {
			return err
		}
		graph, err := s.graph(ctx)
		if err != nil {
			return err
		}
		if err := s.requireSupplier(ctx, tx, in.SupplierID); err != nil {
			return err
		}
		lines, err := s.resolveReturnLines(ctx, tx, graph, in.Lines)
		if err != nil {
			return err
		}
		ret = current
		ret.SupplierID = in.SupplierID
		ret.Discount = in.Discount
		ret.PaidAmount = money.Round2(in.PaidAmount)
		ret.Note = in.Note
		ret.Lines = lines
		if err := priceReturn(&ret); err != nil {
			return err
		}
		if err := tx.DeleteReturnLines(ctx, id); err != nil {
			return fmt.Errorf("purchasing: delete return lines: %w", err)
		}
		if err := insertReturnLines(ctx, tx, &ret); err != nil {
			return err
		}
		if in.Status == ReturnPosted {
			return s.postReturn(ctx, tx, &ret)
		}
		if err := tx.UpdateReturn(ctx, ret); err != nil {
			return fmt.Errorf("purchasing: update return: %w", err)
		}
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, "purchasing:return:update", "purchase_return", id, map[string]any{
		"status": ret.Status, "paid_amount": ret.PaidAmount,
	})
	return ret, nil
}

func (s *Service) updatePostedReturn(ctx context.Context, tx TxRepository, current Return, in ReturnInput) (Return, error) {
	if len(in.Lines) > 0 ||
		(in.SupplierID != 0 && in.SupplierID != current.SupplierID) ||
		(in.Discount != (money.Discount{}) && in.Discount != current.Discount) {
		return Return{}, shared.State(CodePostedRefundOnly, fmt.Sprintf("return %s is posted", current.Number))
	}
	paid := money.Round2(in.PaidAmount)
	if !(paid >= 0) || !finite(paid) || paid < current.PaidAmount {
		return Return{}, shared.Validation(CodeInvalidPaidAmount, "paid amount cannot decrease on a posted return")
	}
	ret := current
	totals, err := computeReturnTotals(current.Lines, current.Discount)
	if err != nil {
		return Return{}, err
	}
	applyReturnTotals(&ret, totals)
	if paid > ret.RefundAmount {
		return Return{}, shared.Validation(CodePaidExceedsRefund, fmt.Sprintf("paid %.2f exceeds refund %.2f", paid, ret.RefundAmount))
	}
	if delta := money.SubRound(paid, current.PaidAmount); delta > 0 {
		if _, err := s.cashbook.CreateReceiptVoucher(ctx, tx.Cashbook(), current.ID, RefTypeReturn, delta,
			"Refund for return "+current.Number); err != nil {
			return Return{}, err
		}
	}
	ret.PaidAmount = paid
	if in.Note != "" {
		ret.Note = in.Note
	}
	settleReturn(&ret)
	if err := tx.UpdateReturn(ctx, ret); err != nil {
		return Return{}, fmt.Errorf("purchasing: update return: %w", err)
	}
	return ret, nil
}

// PostReturn takes a DRAFT return's goods out of stock. Stock is checked
// against current on-hand quantity at this moment, not at draft time.
func (s *Service) PostReturn(ctx context.Context, id int64) (ret Return, err error) {
	ctx, end := s.startOp(ctx, "return", "post", id)
	defer end(&err)

	unlock, err := s.lockDocument(ctx, "return", id)
	if err != nil {
		return Return{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadReturn(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != ReturnDraft {
			return shared.State(CodeOnlyDraftPost, fmt.Sprintf("return %s is %s", current.Number, current.Status))
		}
		ret = current
		if err := priceReturn(&ret); err != nil {
			return err
		}
		return s.postReturn(ctx, tx, &ret)
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, "purchasing:return:post", "purchase_return", id, map[string]any{
		"number": ret.Number, "status": ret.Status,
	})
	return ret, nil
}

// MarkRefunded records that the supplier refunded the rest of a POSTED
// return. No stock moves.
func (s *Service) MarkRefunded(ctx context.Context, id int64) (ret Return, err error) {
	ctx, end := s.startOp(ctx, "return", "refund", id)
	defer end(&err)

	unlock, err := s.lockDocument(ctx, "return", id)
	if err != nil {
		return Return{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadReturn(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != ReturnPosted {
			return shared.State(CodeOnlyPostedRefund, fmt.Sprintf("return %s is %s", current.Number, current.Status))
		}
		totals, err := computeReturnTotals(current.Lines, current.Discount)
		if err != nil {
			return err
		}
		ret = current
		applyReturnTotals(&ret, totals)
		if remaining := debt(ret.RefundAmount, current.PaidAmount); remaining > 0 {
			if _, err := s.cashbook.CreateReceiptVoucher(ctx, tx.Cashbook(), current.ID, RefTypeReturn, remaining,
				"Refund for return "+current.Number); err != nil {
				return err
			}
		}
		ret.PaidAmount = ret.RefundAmount
		ret.Debt = 0
		ret.Status = ReturnRefunded
		if err := tx.UpdateReturn(ctx, ret); err != nil {
			return fmt.Errorf("purchasing: update return: %w", err)
		}
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, "purchasing:return:refund", "purchase_return", id, map[string]any{"paid_amount": ret.PaidAmount})
	return ret, nil
}

// CancelReturn moves a DRAFT return to CANCELLED.
func (s *Service) CancelReturn(ctx context.Context, id int64) (ret Return, err error) {
	ctx, end := s.startOp(ctx, "return", "cancel", id)
	defer end(&err)

	unlock, err := s.lockDocument(ctx, "return", id)
	if err != nil {
		return Return{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.loadReturn(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != ReturnDraft {
			return shared.State(CodeOnlyDraftCancel, fmt.Sprintf("return %s is %s", current.Number, current.Status))
		}
		ret = current
		ret.Status = ReturnCancelled
		if err := tx.UpdateReturn(ctx, ret); err != nil {
			return fmt.Errorf("purchasing: update return: %w", err)
		}
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, "purchasing:return:cancel", "purchase_return", id, nil)
	return ret, nil
}

// GetReturn returns a purchase return with its lines.
func (s *Service) GetReturn(ctx context.Context, id int64) (Return, error) {
	ret, err := s.repo.GetReturn(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Return{}, shared.NotFound(CodeReturnNotFound, fmt.Sprintf("return %d not found", id))
	}
	if err != nil {
		return Return{}, fmt.Errorf("purchasing: get return: %w", err)
	}
	return ret, nil
}

// ListReturns returns one page of return headers.
func (s *Service) ListReturns(ctx context.Context, filter ListFilter) ([]Return, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.ListReturns(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("purchasing: list returns: %w", err)
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// postReturn checks stock for every item, books the outflows, settles the
// paid amount and writes the header. The caller has priced ret.
func (s *Service) postReturn(ctx context.Context, tx TxRepository, ret *Return) error {
	stock := tx.Stock()
	need := make(map[int64]float64, len(ret.Lines))
	ids := make([]int64, 0, len(ret.Lines))
	for _, line := range ret.Lines {
		if _, ok := need[line.ItemID]; !ok {
			ids = append(ids, line.ItemID)
		}
		need[line.ItemID] = money.Round3(need[line.ItemID] + line.BaseQty)
	}
	items, err := s.ledger.Lock(ctx, stock, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if items[id].Quantity+inventory.StockEpsilon < need[id] {
			return shared.Validation(CodeInsufficientStockPrefix+strconv.FormatInt(id, 10),
				fmt.Sprintf("item %d holds %g, return needs %g", id, items[id].Quantity, need[id]))
		}
	}
	for _, line := range ret.Lines {
		_, err := s.ledger.Out(ctx, stock, inventory.Movement{
			ItemID:  line.ItemID,
			BaseQty: line.BaseQty,
			RefType: RefTypeReturn,
			RefID:   ret.ID,
			Note:    ret.Number,
		})
		if err != nil {
			return err
		}
	}
	if ret.PaidAmount > 0 {
		if _, err := s.cashbook.CreateReceiptVoucher(ctx, tx.Cashbook(), ret.ID, RefTypeReturn, ret.PaidAmount,
			"Refund for return "+ret.Number); err != nil {
			return err
		}
	}
	now := s.now()
	ret.PostedAt = &now
	settleReturn(ret)
	if err := tx.UpdateReturn(ctx, *ret); err != nil {
		return fmt.Errorf("purchasing: update return: %w", err)
	}
	return nil
}

func priceReturn(ret *Return) error {
	totals, err := computeReturnTotals(ret.Lines, ret.Discount)
	if err != nil {
		return err
	}
	applyReturnTotals(ret, totals)
	if ret.PaidAmount > ret.RefundAmount {
		return shared.Validation(CodePaidExceedsRefund, fmt.Sprintf("paid %.2f exceeds refund %.2f", ret.PaidAmount, ret.RefundAmount))
	}
	return nil
}

// settleReturn derives debt and status once the return is posted.
func settleReturn(ret *Return) {
	ret.Debt = debt(ret.RefundAmount, ret.PaidAmount)
	if ret.Debt == 0 {
		ret.Status = ReturnRefunded
	} else {
		ret.Status = ReturnPosted
	}
}

func (s *Service) resolveReturnLines(ctx context.Context, tx TxRepository, graph *uom.Graph, inputs []ReturnLineInput) ([]ReturnLine, error) {
	lines := make([]ReturnLine, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		unit, factor, err := s.resolveUnit(ctx, tx, graph, in.ItemID, in.ReceivedUOM, in.ConversionToBase)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%d|%s", in.ItemID, unit.Code)
		if _, dup := seen[key]; dup {
			return nil, shared.Validationf(CodeDuplicateLotAt, "item and unit repeat an earlier line", i)
		}
		seen[key] = struct{}{}
		lines = append(lines, ReturnLine{
			LineNo:           i,
			ItemID:           in.ItemID,
			Quantity:         money.Round3(in.Quantity),
			ReceivedUOM:      unit.Code,
			ConversionToBase: factor,
			BaseQty:          money.MulRound(money.Round3(in.Quantity), factor, 3),
			UnitPrice:        money.Round2(in.UnitPrice),
		})
	}
	return lines, nil
}

func insertReturnLines(ctx context.Context, tx TxRepository, ret *Return) error {
	for i := range ret.Lines {
		ret.Lines[i].ReturnID = ret.ID
		id, err := tx.InsertReturnLine(ctx, ret.Lines[i])
		if err != nil {
			return fmt.Errorf("purchasing: insert return line: %w", err)
		}
		ret.Lines[i].ID = id
	}
	return nil
}

func (s *Service) loadReturn(ctx context.Context, tx TxRepository, id int64) (Return, error) {
	ret, err := tx.GetReturnForUpdate(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Return{}, shared.NotFound(CodeReturnNotFound, fmt.Sprintf("return %d not found", id))
	}
	if err != nil {
		return Return{}, fmt.Errorf("purchasing: load return: %w", err)
	}
	return ret, nil
}

package purchasing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/cashbook"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/money"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/lock"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
)

// memoryState is everything one transaction may touch.
type memoryState struct {
	suppliers    map[int64]bool
	items        map[int64]inventory.Item
	movements    []inventory.Transaction
	vouchers     []cashbook.Voucher
	receipts     map[int64]Receipt
	receiptLines map[int64][]ReceiptLine
	returns      map[int64]Return
	returnLines  map[int64][]ReturnLine
	nextID       int64
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		suppliers:    make(map[int64]bool, len(s.suppliers)),
		items:        make(map[int64]inventory.Item, len(s.items)),
		movements:    append([]inventory.Transaction(nil), s.movements...),
		vouchers:     append([]cashbook.Voucher(nil), s.vouchers...),
		receipts:     make(map[int64]Receipt, len(s.receipts)),
		receiptLines: make(map[int64][]ReceiptLine, len(s.receiptLines)),
		returns:      make(map[int64]Return, len(s.returns)),
		returnLines:  make(map[int64][]ReturnLine, len(s.returnLines)),
		nextID:       s.nextID,
	}
	for k, v := range s.suppliers {
		c.suppliers[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.receipts {
		c.receipts[k] = v
	}
	for k, v := range s.receiptLines {
		c.receiptLines[k] = append([]ReceiptLine(nil), v...)
	}
	for k, v := range s.returns {
		c.returns[k] = v
	}
	for k, v := range s.returnLines {
		c.returnLines[k] = append([]ReturnLine(nil), v...)
	}
	return c
}

// memoryRepo runs each transaction against a copy of the state and swaps
// it in on success. Transactions are serialised.
type memoryRepo struct {
	mu          sync.Mutex
	state       *memoryState
	failVoucher bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		suppliers:    map[int64]bool{1: true},
		items:        map[int64]inventory.Item{},
		receipts:     map[int64]Receipt{},
		receiptLines: map[int64][]ReceiptLine{},
		returns:      map[int64]Return{},
		returnLines:  map[int64][]ReturnLine{},
	}}
}

func (r *memoryRepo) seedItem(item inventory.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.items[item.ID] = item
}

func (r *memoryRepo) item(id int64) inventory.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.items[id]
}

func (r *memoryRepo) vouchers() []cashbook.Voucher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cashbook.Voucher(nil), r.state.vouchers...)
}

func (r *memoryRepo) movements() []inventory.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inventory.Transaction(nil), r.state.movements...)
}

func (r *memoryRepo) seedReceipt(rec Receipt) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.nextID++
	rec.ID = r.state.nextID
	for i := range rec.Lines {
		rec.Lines[i].ReceiptID = rec.ID
	}
	r.state.receiptLines[rec.ID] = append([]ReceiptLine(nil), rec.Lines...)
	rec.Lines = nil
	r.state.receipts[rec.ID] = rec
	return rec.ID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{state: r.state.clone(), failVoucher: r.failVoucher}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: r.state}).GetReceiptForUpdate(ctx, id)
}

func (r *memoryRepo) ListReceipts(ctx context.Context, filter ListFilter) ([]Receipt, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Receipt
	for _, rec := range r.state.receipts {
		if filter.Status != "" && string(rec.Status) != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) GetReturn(ctx context.Context, id int64) (Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: r.state}).GetReturnForUpdate(ctx, id)
}

func (r *memoryRepo) ListReturns(ctx context.Context, filter ListFilter) ([]Return, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Return
	for _, ret := range r.state.returns {
		if filter.Status != "" && string(ret.Status) != filter.Status {
			continue
		}
		out = append(out, ret)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

// memoryTx serves the document, stock and cashbook ports from one state.
type memoryTx struct {
	state       *memoryState
	failVoucher bool
}

func (t *memoryTx) SupplierExists(_ context.Context, id int64) (bool, error) {
	return t.state.suppliers[id], nil
}

func (t *memoryTx) ItemBaseUOM(_ context.Context, itemID int64) (string, error) {
	item, ok := t.state.items[itemID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return item.BaseUOM, nil
}

func (t *memoryTx) InsertReceipt(_ context.Context, rec Receipt) (int64, error) {
	t.state.nextID++
	rec.ID = t.state.nextID
	rec.Lines = nil
	t.state.receipts[rec.ID] = rec
	return rec.ID, nil
}

func (t *memoryTx) UpdateReceipt(_ context.Context, rec Receipt) error {
	if _, ok := t.state.receipts[rec.ID]; !ok {
		return shared.ErrNotFound
	}
	rec.Lines = nil
	t.state.receipts[rec.ID] = rec
	return nil
}

func (t *memoryTx) GetReceiptForUpdate(_ context.Context, id int64) (Receipt, error) {
	rec, ok := t.state.receipts[id]
	if !ok {
		return Receipt{}, shared.ErrNotFound
	}
	rec.Lines = append([]ReceiptLine(nil), t.state.receiptLines[id]...)
	return rec, nil
}

func (t *memoryTx) DeleteReceiptLines(_ context.Context, receiptID int64) error {
	delete(t.state.receiptLines, receiptID)
	return nil
}

// storedFactor mirrors the NUMERIC(30,12) conversion_to_base column.
func storedFactor(v float64) float64 {
	return decimal.NewFromFloat(v).Round(12).InexactFloat64()
}

func (t *memoryTx) InsertReceiptLine(_ context.Context, line ReceiptLine) (int64, error) {
	line.ConversionToBase = storedFactor(line.ConversionToBase)
	t.state.nextID++
	line.ID = t.state.nextID
	t.state.receiptLines[line.ReceiptID] = append(t.state.receiptLines[line.ReceiptID], line)
	return line.ID, nil
}

func (t *memoryTx) InsertReturn(_ context.Context, ret Return) (int64, error) {
	t.state.nextID++
	ret.ID = t.state.nextID
	ret.Lines = nil
	t.state.returns[ret.ID] = ret
	return ret.ID, nil
}

func (t *memoryTx) UpdateReturn(_ context.Context, ret Return) error {
	if _, ok := t.state.returns[ret.ID]; !ok {
		return shared.ErrNotFound
	}
	ret.Lines = nil
	t.state.returns[ret.ID] = ret
	return nil
}

func (t *memoryTx) GetReturnForUpdate(_ context.Context, id int64) (Return, error) {
	ret, ok := t.state.returns[id]
	if !ok {
		return Return{}, shared.ErrNotFound
	}
	ret.Lines = append([]ReturnLine(nil), t.state.returnLines[id]...)
	return ret, nil
}

func (t *memoryTx) DeleteReturnLines(_ context.Context, returnID int64) error {
	delete(t.state.returnLines, returnID)
	return nil
}

func (t *memoryTx) InsertReturnLine(_ context.Context, line ReturnLine) (int64, error) {
	line.ConversionToBase = storedFactor(line.ConversionToBase)
	t.state.nextID++
	line.ID = t.state.nextID
	t.state.returnLines[line.ReturnID] = append(t.state.returnLines[line.ReturnID], line)
	return line.ID, nil
}

func (t *memoryTx) Stock() inventory.TxRepository { return t }

func (t *memoryTx) Cashbook() cashbook.TxRepository { return t }

func (t *memoryTx) GetItemForUpdate(_ context.Context, itemID int64) (inventory.Item, error) {
	item, ok := t.state.items[itemID]
	if !ok {
		return inventory.Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (t *memoryTx) UpdateItemStock(_ context.Context, item inventory.Item) error {
	t.state.items[item.ID] = item
	return nil
}

func (t *memoryTx) InsertTransaction(_ context.Context, rec inventory.Transaction) (int64, error) {
	t.state.nextID++
	rec.ID = t.state.nextID
	t.state.movements = append(t.state.movements, rec)
	return rec.ID, nil
}

func (t *memoryTx) InsertVoucher(_ context.Context, v cashbook.Voucher) (int64, error) {
	if t.failVoucher {
		return 0, errors.New("cashbook unavailable")
	}
	t.state.nextID++
	v.ID = t.state.nextID
	t.state.vouchers = append(t.state.vouchers, v)
	return v.ID, nil
}

type staticUnits struct {
	graph *uom.Graph
}

func (s staticUnits) Graph(context.Context) (*uom.Graph, error) { return s.graph, nil }

func testGraph() *uom.Graph {
	return uom.NewGraph(
		[]uom.Unit{
			{Code: "KG", Dimension: uom.DimensionMass},
			{Code: "G", Dimension: uom.DimensionMass},
			{Code: "BAG", Dimension: uom.DimensionMass},
			{Code: "TRAY", Dimension: uom.DimensionMass},
			{Code: "PACK", Dimension: uom.DimensionMass},
			{Code: "L", Dimension: uom.DimensionVolume},
		},
		[]uom.Conversion{
			{From: "KG", To: "G", Factor: 1000},
			{From: "KG", To: "PACK", Factor: 12},
			{From: "BAG", To: "KG", Factor: 5},
		},
	)
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) Claim(_ context.Context, module, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"/"+key] = true
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, module, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"/"+key)
	return nil
}

type busyLocker struct{}

func (busyLocker) Obtain(context.Context, string, time.Duration) (func(), error) {
	return nil, lock.ErrNotObtained
}

type testEnv struct {
	repo    *memoryRepo
	keys    *memoryIdempotency
	service *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newMemoryRepo()
	repo.seedItem(inventory.Item{ID: 1, Name: "Salmon", BaseUOM: "KG"})
	repo.seedItem(inventory.Item{ID: 2, Name: "Shrimp", BaseUOM: "KG"})
	keys := &memoryIdempotency{keys: map[string]bool{}}
	svc := NewService(Deps{
		Repo:        repo,
		Units:       staticUnits{graph: testGraph()},
		Ledger:      inventory.NewLedger(),
		Cashbook:    cashbook.NewService(),
		Idempotency: keys,
	})
	return &testEnv{repo: repo, keys: keys, service: svc}
}

func amount(v float64) money.Discount {
	return money.Discount{Type: money.DiscountAmount, Value: v}
}

func postedReceiptInput() ReceiptInput {
	return ReceiptInput{
		SupplierID:     1,
		GlobalDiscount: amount(35),
		ShippingFee:    10,
		AmountPaid:     100,
		Status:         ReceiptPosted,
		Lines: []ReceiptLineInput{
			{ItemID: 1, Quantity: 2, ReceivedUOM: "BAG", UnitPrice: 100},
			{ItemID: 2, Quantity: 3, ReceivedUOM: "KG", UnitPrice: 50},
		},
	}
}

func TestCreatePostedReceiptImportsStockAndPays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.service.CreateReceipt(ctx, postedReceiptInput())
	require.NoError(t, err)
	require.Equal(t, ReceiptOwing, rec.Status)
	require.NotNil(t, rec.PostedAt)
	require.Equal(t, 350.0, rec.SubTotal)
	require.Equal(t, 35.0, rec.DiscountAmount)
	require.Equal(t, 325.0, rec.GrandTotal)
	require.Equal(t, 225.0, rec.Debt)
	require.Equal(t, 20.0, rec.Lines[0].AllocatedDiscount)
	require.Equal(t, 15.0, rec.Lines[1].AllocatedDiscount)
	require.Equal(t, 10.0, rec.Lines[0].BaseQty)
	require.Equal(t, 5.0, rec.Lines[0].ConversionToBase)

	salmon := env.repo.item(1)
	require.Equal(t, 10.0, salmon.Quantity)
	require.InDelta(t, 20.0, salmon.AvgCost, 1e-9)
	shrimp := env.repo.item(2)
	require.Equal(t, 3.0, shrimp.Quantity)
	require.InDelta(t, 50.0, shrimp.AvgCost, 1e-9)

	require.Len(t, env.repo.movements(), 2)
	vouchers := env.repo.vouchers()
	require.Len(t, vouchers, 1)
	require.Equal(t, cashbook.KindPayment, vouchers[0].Kind)
	require.Equal(t, 100.0, vouchers[0].Amount)
	require.Equal(t, RefTypeReceipt, vouchers[0].RefType)
	require.Equal(t, rec.ID, vouchers[0].RefID)
}

func TestPayReceiptSettlesDebt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec, err := env.service.CreateReceipt(ctx, postedReceiptInput())
	require.NoError(t, err)

	_, err = env.service.PayReceipt(ctx, rec.ID, 300)
	require.True(t, shared.IsCode(err, CodeOverpay))
	_, err = env.service.PayReceipt(ctx, rec.ID, 0)
	require.True(t, shared.IsCode(err, CodeInvalidPayAmount))

	rec, err = env.service.PayReceipt(ctx, rec.ID, 125)
	require.NoError(t, err)
	require.Equal(t, ReceiptOwing, rec.Status)
	require.Equal(t, 100.0, rec.Debt)

	rec, err = env.service.PayReceipt(ctx, rec.ID, 100)
	require.NoError(t, err)
	require.Equal(t, ReceiptPaid, rec.Status)
	require.Zero(t, rec.Debt)
	require.Equal(t, 325.0, rec.AmountPaid)
	require.Len(t, env.repo.vouchers(), 3)

	_, err = env.service.PayReceipt(ctx, rec.ID, 1)
	require.True(t, shared.IsCode(err, CodeOnlyOwingOrPostedPay))
}

func TestPayFullyPaidReceiptHasNoRemaining(t *testing.T) {
	env := newTestEnv(t)
	id := env.repo.seedReceipt(Receipt{
		Number:         "GR-SEED",
		SupplierID:     1,
		GlobalDiscount: amount(0),
		GrandTotal:     1000,
		AmountPaid:     1000,
		Status:         ReceiptPosted,
		Lines: []ReceiptLine{
			{ItemID: 1, Quantity: 10, ReceivedUOM: "KG", ConversionToBase: 1, BaseQty: 10, UnitPrice: 100, Discount: amount(0)},
		},
	})

	_, err := env.service.PayReceipt(context.Background(), id, 50)
	require.True(t, shared.IsCode(err, CodeNoRemaining))
	require.Empty(t, env.repo.vouchers())
}

func TestPayDraftReceiptRejected(t *testing.T) {
	env := newTestEnv(t)
	in := postedReceiptInput()
	in.Status = ReceiptDraft
	rec, err := env.service.CreateReceipt(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, ReceiptDraft, rec.Status)
	require.Zero(t, env.repo.item(1).Quantity)

	_, err = env.service.PayReceipt(context.Background(), rec.ID, 10)
	require.True(t, shared.IsCode(err, CodeOnlyOwingOrPostedPay))
}

func TestReceiptStateMachine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := postedReceiptInput()
	in.Status = ""
	in.AmountPaid = 325
	rec, err := env.service.CreateReceipt(ctx, in)
	require.NoError(t, err)
	require.Equal(t, ReceiptDraft, rec.Status)

	rec, err = env.service.PostReceipt(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, ReceiptPaid, rec.Status)
	require.Equal(t, 10.0, env.repo.item(1).Quantity)

	_, err = env.service.PostReceipt(ctx, rec.ID)
	require.True(t, shared.IsCode(err, CodeOnlyDraftPost))
	_, err = env.service.CancelReceipt(ctx, rec.ID)
	require.True(t, shared.IsCode(err, CodeOnlyDraftCancel))
	_, err = env.service.UpdateReceipt(ctx, rec.ID, postedReceiptInput())
	require.True(t, shared.IsCode(err, CodeOnlyDraftUpdate))
	require.Equal(t, 10.0, env.repo.item(1).Quantity)
}

func TestCancelDraftReceiptLeavesStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := postedReceiptInput()
	in.Status = ReceiptDraft
	rec, err := env.service.CreateReceipt(ctx, in)
	require.NoError(t, err)

	rec, err = env.service.CancelReceipt(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, ReceiptCancelled, rec.Status)
	require.Zero(t, env.repo.item(1).Quantity)
	require.Empty(t, env.repo.movements())

	_, err = env.service.PostReceipt(ctx, rec.ID)
	require.True(t, shared.IsCode(err, CodeOnlyDraftPost))
}

func TestUpdateDraftReceiptReplacesLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := postedReceiptInput()
	in.Status = ReceiptDraft
	rec, err := env.service.CreateReceipt(ctx, in)
	require.NoError(t, err)

	in.GlobalDiscount = amount(0)
	in.ShippingFee = 0
	in.AmountPaid = 0
	in.Lines = []ReceiptLineInput{{ItemID: 1, Quantity: 500, ReceivedUOM: "G", UnitPrice: 0.04}}
	rec, err = env.service.UpdateReceipt(ctx, rec.ID, in)
	require.NoError(t, err)
	require.Equal(t, ReceiptDraft, rec.Status)
	require.Len(t, rec.Lines, 1)
	require.Equal(t, 0.5, rec.Lines[0].BaseQty)
	require.Equal(t, 20.0, rec.GrandTotal)

	stored, err := env.service.GetReceipt(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)

	in.Status = ReceiptPosted
	rec, err = env.service.UpdateReceipt(ctx, rec.ID, in)
	require.NoError(t, err)
	require.Equal(t, ReceiptOwing, rec.Status)
	require.Equal(t, 0.5, env.repo.item(1).Quantity)
	require.InDelta(t, 40.0, env.repo.item(1).AvgCost, 1e-9)
}

func TestReceiptVoucherFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.repo.failVoucher = true

	_, err := env.service.CreateReceipt(context.Background(), postedReceiptInput())
	require.Error(t, err)
	require.Zero(t, env.repo.item(1).Quantity)
	require.Empty(t, env.repo.movements())
	items, _, err := env.service.ListReceipts(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestReceiptValidationCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*ReceiptInput)
		code   string
	}{
		{"no supplier", func(in *ReceiptInput) { in.SupplierID = 0 }, CodeSupplierNotFound},
		{"unknown supplier", func(in *ReceiptInput) { in.SupplierID = 99 }, CodeSupplierNotFound},
		{"no lines", func(in *ReceiptInput) { in.Lines = nil }, CodeEmptyLines},
		{"global percent", func(in *ReceiptInput) {
			in.GlobalDiscount = money.Discount{Type: money.DiscountPercent, Value: 120}
		}, CodeGlobalPercentOutOfRange},
		{"negative shipping", func(in *ReceiptInput) { in.ShippingFee = -1 }, CodeInvalidShippingFee},
		{"bad status", func(in *ReceiptInput) { in.Status = ReceiptPaid }, CodeInvalidStatus},
		{"qty at line 1", func(in *ReceiptInput) { in.Lines[1].Quantity = 0 }, "INVALID_QTY_AT_1"},
		{"price at line 0", func(in *ReceiptInput) { in.Lines[0].UnitPrice = -5 }, "INVALID_PRICE_AT_0"},
		{"line percent", func(in *ReceiptInput) {
			in.Lines[1].Discount = money.Discount{Type: money.DiscountPercent, Value: 101}
		}, "LINE_PERCENT_OUT_OF_RANGE_AT_1"},
		{"discount exceeds", func(in *ReceiptInput) { in.GlobalDiscount = amount(400) }, CodeDiscountExceedsTotal},
		{"overpay", func(in *ReceiptInput) { in.AmountPaid = 1000 }, CodeOverpay},
		{"unknown item", func(in *ReceiptInput) { in.Lines[0].ItemID = 42 }, CodeItemNotFound},
		{"no path", func(in *ReceiptInput) { in.Lines[0].ReceivedUOM = "TRAY" }, uom.CodeConversionNotFound},
		{"dimension", func(in *ReceiptInput) { in.Lines[0].ReceivedUOM = "L" }, uom.CodeDimensionMismatch},
		{"duplicate lot", func(in *ReceiptInput) {
			in.Lines = append(in.Lines, ReceiptLineInput{ItemID: 1, Quantity: 1, ReceivedUOM: "bag", UnitPrice: 100})
		}, "DUPLICATE_LOT_AT_2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := postedReceiptInput()
			tc.mutate(&in)
			_, err := env.service.CreateReceipt(ctx, in)
			require.Error(t, err)
			require.Equal(t, tc.code, shared.CodeOf(err))
		})
	}
	require.Zero(t, env.repo.item(1).Quantity)
}

func TestReceiptSameItemDifferentLotsAccepted(t *testing.T) {
	env := newTestEnv(t)
	in := postedReceiptInput()
	in.GlobalDiscount = amount(0)
	in.AmountPaid = 0
	in.Lines = []ReceiptLineInput{
		{ItemID: 1, Quantity: 1, ReceivedUOM: "KG", UnitPrice: 10, Lot: "A"},
		{ItemID: 1, Quantity: 1, ReceivedUOM: "KG", UnitPrice: 30, Lot: "B"},
	}
	_, err := env.service.CreateReceipt(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 2.0, env.repo.item(1).Quantity)
	require.InDelta(t, 20.0, env.repo.item(1).AvgCost, 1e-9)
}

func TestDraftThenPostCostsLikeDirectPost(t *testing.T) {
	ctx := context.Background()
	in := ReceiptInput{
		SupplierID: 1,
		Status:     ReceiptPosted,
		Lines:      []ReceiptLineInput{{ItemID: 1, Quantity: 3, ReceivedUOM: "PACK", UnitPrice: 10000}},
	}

	direct := newTestEnv(t)
	posted, err := direct.service.CreateReceipt(ctx, in)
	require.NoError(t, err)

	staged := newTestEnv(t)
	in.Status = ReceiptDraft
	draft, err := staged.service.CreateReceipt(ctx, in)
	require.NoError(t, err)
	reloaded, err := staged.service.GetReceipt(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, posted.Lines[0].ConversionToBase, reloaded.Lines[0].ConversionToBase)
	_, err = staged.service.PostReceipt(ctx, draft.ID)
	require.NoError(t, err)

	require.Equal(t, direct.repo.item(1).Quantity, staged.repo.item(1).Quantity)
	require.Equal(t, direct.repo.item(1).AvgCost, staged.repo.item(1).AvgCost)
	require.Equal(t, direct.repo.movements()[0].UnitCost, staged.repo.movements()[0].UnitCost)
}

func TestLineBaseQtyFollowsStoredQuantity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.service.CreateReceipt(ctx, ReceiptInput{
		SupplierID: 1,
		Status:     ReceiptDraft,
		Lines:      []ReceiptLineInput{{ItemID: 1, Quantity: 2.0004, ReceivedUOM: "BAG", UnitPrice: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, 2.0, rec.Lines[0].Quantity)
	require.Equal(t, 10.0, rec.Lines[0].BaseQty)

	ret, err := env.service.CreateReturn(ctx, ReturnInput{
		SupplierID: 1,
		Status:     ReturnDraft,
		Lines:      []ReturnLineInput{{ItemID: 1, Quantity: 2.0004, ReceivedUOM: "BAG", UnitPrice: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, 2.0, ret.Lines[0].Quantity)
	require.Equal(t, 10.0, ret.Lines[0].BaseQty)
}

func TestCreateReceiptIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := postedReceiptInput()
	in.IdempotencyKey = "req-1"

	_, err := env.service.CreateReceipt(ctx, in)
	require.NoError(t, err)
	_, err = env.service.CreateReceipt(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, 10.0, env.repo.item(1).Quantity)

	failing := postedReceiptInput()
	failing.IdempotencyKey = "req-2"
	failing.SupplierID = 99
	_, err = env.service.CreateReceipt(ctx, failing)
	require.Error(t, err)
	require.False(t, env.keys.keys["purchasing.receipt/req-2"])
}

func TestLockedDocumentRejected(t *testing.T) {
	env := newTestEnv(t)
	env.service.locker = busyLocker{}

	_, err := env.service.PostReceipt(context.Background(), 1)
	require.True(t, shared.IsCode(err, CodeDocumentLocked))
	var appErr *shared.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, shared.KindConflict, appErr.Kind)
}

func seedStock(t *testing.T, env *testEnv, qty float64) {
	t.Helper()
	_, err := env.service.CreateReceipt(context.Background(), ReceiptInput{
		SupplierID: 1,
		Status:     ReceiptPosted,
		Lines:      []ReceiptLineInput{{ItemID: 1, Quantity: qty, ReceivedUOM: "KG", UnitPrice: 20}},
	})
	require.NoError(t, err)
}

func TestReturnExceedingStockFails(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, 10)

	_, err := env.service.CreateReturn(context.Background(), ReturnInput{
		SupplierID: 1,
		Status:     ReturnPosted,
		Lines:      []ReturnLineInput{{ItemID: 1, Quantity: 15, ReceivedUOM: "KG", UnitPrice: 20}},
	})
	require.Error(t, err)
	require.Equal(t, CodeInsufficientStockPrefix+"1", shared.CodeOf(err))
	require.Equal(t, 10.0, env.repo.item(1).Quantity)
	rets, _, err := env.service.ListReturns(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Empty(t, rets)
}

func TestReturnChecksAggregatedQuantityPerItem(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, 10)

	_, err := env.service.CreateReturn(context.Background(), ReturnInput{
		SupplierID: 1,
		Status:     ReturnPosted,
		Lines: []ReturnLineInput{
			{ItemID: 1, Quantity: 6, ReceivedUOM: "KG", UnitPrice: 20},
			{ItemID: 1, Quantity: 1, ReceivedUOM: "BAG", UnitPrice: 100},
		},
	})
	require.Equal(t, CodeInsufficientStockPrefix+"1", shared.CodeOf(err))
	require.Equal(t, 10.0, env.repo.item(1).Quantity)
}

func TestPostedReturnTakesStockAndRefunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedStock(t, env, 10)

	ret, err := env.service.CreateReturn(ctx, ReturnInput{
		SupplierID: 1,
		Discount:   amount(8),
		PaidAmount: 30,
		Status:     ReturnPosted,
		Lines:      []ReturnLineInput{{ItemID: 1, Quantity: 4, ReceivedUOM: "KG", UnitPrice: 20}},
	})
	require.NoError(t, err)
	require.Equal(t, ReturnPosted, ret.Status)
	require.Equal(t, 80.0, ret.TotalGoods)
	require.Equal(t, 72.0, ret.RefundAmount)
	require.Equal(t, 42.0, ret.Debt)
	require.Equal(t, 72.0, ret.Lines[0].LineTotalAfterDiscount)

	item := env.repo.item(1)
	require.Equal(t, 6.0, item.Quantity)
	require.InDelta(t, 20.0, item.AvgCost, 1e-9)

	_, err = env.service.UpdateReturn(ctx, ret.ID, ReturnInput{PaidAmount: 20})
	require.True(t, shared.IsCode(err, CodeInvalidPaidAmount))
	_, err = env.service.UpdateReturn(ctx, ret.ID, ReturnInput{PaidAmount: 100})
	require.True(t, shared.IsCode(err, CodePaidExceedsRefund))
	_, err = env.service.UpdateReturn(ctx, ret.ID, ReturnInput{
		PaidAmount: 40,
		Lines:      []ReturnLineInput{{ItemID: 1, Quantity: 1, UnitPrice: 20}},
	})
	require.True(t, shared.IsCode(err, CodePostedRefundOnly))

	ret, err = env.service.UpdateReturn(ctx, ret.ID, ReturnInput{PaidAmount: 72})
	require.NoError(t, err)
	require.Equal(t, ReturnRefunded, ret.Status)
	require.Zero(t, ret.Debt)

	var refunds []float64
	for _, v := range env.repo.vouchers() {
		if v.Kind == cashbook.KindReceipt {
			refunds = append(refunds, v.Amount)
		}
	}
	require.Equal(t, []float64{30, 42}, refunds)

	_, err = env.service.UpdateReturn(ctx, ret.ID, ReturnInput{PaidAmount: 72})
	require.True(t, shared.IsCode(err, CodeOnlyDraftUpdate))
	require.Equal(t, 6.0, env.repo.item(1).Quantity)
}

func TestMarkRefundedSettlesRemaining(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedStock(t, env, 10)

	ret, err := env.service.CreateReturn(ctx, ReturnInput{
		SupplierID: 1,
		Lines:      []ReturnLineInput{{ItemID: 1, Quantity: 2, ReceivedUOM: "KG", UnitPrice: 20}},
	})
	require.NoError(t, err)
	require.Equal(t, ReturnDraft, ret.Status)

	_, err = env.service.MarkRefunded(ctx, ret.ID)
	require.True(t, shared.IsCode(err, CodeOnlyPostedRefund))

	ret, err = env.service.PostReturn(ctx, ret.ID)
	require.NoError(t, err)
	require.Equal(t, ReturnPosted, ret.Status)
	require.Equal(t, 8.0, env.repo.item(1).Quantity)

	ret, err = env.service.MarkRefunded(ctx, ret.ID)
	require.NoError(t, err)
	require.Equal(t, ReturnRefunded, ret.Status)
	require.Equal(t, 40.0, ret.PaidAmount)

	vouchers := env.repo.vouchers()
	last := vouchers[len(vouchers)-1]
	require.Equal(t, cashbook.KindReceipt, last.Kind)
	require.Equal(t, 40.0, last.Amount)
	require.Equal(t, RefTypeReturn, last.RefType)

	_, err = env.service.CancelReturn(ctx, ret.ID)
	require.True(t, shared.IsCode(err, CodeOnlyDraftCancel))
}

func TestDraftReturnPostedLaterChecksCurrentStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedStock(t, env, 10)

	ret, err := env.service.CreateReturn(ctx, ReturnInput{
		SupplierID: 1,
		Lines:      []ReturnLineInput{{ItemID: 1, Quantity: 8, ReceivedUOM: "KG", UnitPrice: 20}},
	})
	require.NoError(t, err)

	other, err := env.service.CreateReturn(ctx, ReturnInput{
		SupplierID: 1,
		Status:     ReturnPosted,
		Lines:      []ReturnLineInput{{ItemID: 1, Quantity: 5, ReceivedUOM: "KG", UnitPrice: 20}},
	})
	require.NoError(t, err)
	require.Equal(t, ReturnPosted, other.Status)

	_, err = env.service.PostReturn(ctx, ret.ID)
	require.Equal(t, CodeInsufficientStockPrefix+"1", shared.CodeOf(err))
	require.Equal(t, 5.0, env.repo.item(1).Quantity)

	stored, err := env.service.GetReturn(ctx, ret.ID)
	require.NoError(t, err)
	require.Equal(t, ReturnDraft, stored.Status)

	cancelled, err := env.service.CancelReturn(ctx, ret.ID)
	require.NoError(t, err)
	require.Equal(t, ReturnCancelled, cancelled.Status)
}

func TestReturnVoucherFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	seedStock(t, env, 10)
	env.repo.failVoucher = true

	_, err := env.service.CreateReturn(context.Background(), ReturnInput{
		SupplierID: 1,
		PaidAmount: 10,
		Status:     ReturnPosted,
		Lines:      []ReturnLineInput{{ItemID: 1, Quantity: 2, ReceivedUOM: "KG", UnitPrice: 20}},
	})
	require.Error(t, err)
	require.Equal(t, 10.0, env.repo.item(1).Quantity)
}

func TestGetMissingDocuments(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.GetReceipt(context.Background(), 404)
	require.True(t, shared.IsCode(err, CodeReceiptNotFound))
	_, err = env.service.GetReturn(context.Background(), 404)
	require.True(t, shared.IsCode(err, CodeReturnNotFound))
	_, err = env.service.PayReceipt(context.Background(), 404, 1)
	require.True(t, shared.IsCode(err, CodeReceiptNotFound))
}

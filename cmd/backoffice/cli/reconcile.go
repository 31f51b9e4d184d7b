package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
)

// Reconciler lists items out of balance with their stock card.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Discrepancy, error)
}

// StockCLI offers operational helpers around the stock ledger.
type StockCLI struct {
	inventory Reconciler
}

// NewStockCLI constructs the helper.
func NewStockCLI(inv Reconciler) *StockCLI {
	return &StockCLI{inventory: inv}
}

// ReconcileOptions defines the flags of the stock reconcile command.
type ReconcileOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary is the JSON output of stock reconcile.
type ReconcileSummary struct {
	OK            bool               `json:"ok"`
	Discrepancies []ReconcileFinding `json:"discrepancies"`
}

// ReconcileFinding is one out-of-balance item.
type ReconcileFinding struct {
	ItemID       int64   `json:"item_id"`
	Quantity     float64 `json:"quantity"`
	LastAfterQty float64 `json:"last_after_qty"`
	NetQty       float64 `json:"net_qty"`
	Reason       string  `json:"reason"`
}

// ReconcileCommand runs the reconciliation and prints the outcome. It exits
// with 10 when discrepancies were found.
func (c *StockCLI) ReconcileCommand(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.inventory == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "stock reconcile: inventory not configured")
		return 1
	}
	found, err := c.inventory.Reconcile(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock reconcile: %v\n", err)
		return 1
	}
	findings := make([]ReconcileFinding, 0, len(found))
	for _, d := range found {
		findings = append(findings, ReconcileFinding(d))
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].ItemID < findings[j].ItemID })

	if opts.JSONOutput {
		summary := ReconcileSummary{OK: len(findings) == 0, Discrepancies: findings}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "stock reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		renderReconcileHuman(opts.Stdout, findings)
	}
	if len(findings) > 0 {
		return 10
	}
	return 0
}

func renderReconcileHuman(out io.Writer, findings []ReconcileFinding) {
	if len(findings) == 0 {
		_, _ = fmt.Fprintln(out, "Stock matches movement history for every item.")
		return
	}
	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(out, "%d item(s) out of balance:\n", len(findings))
	for _, f := range findings {
		_, _ = p.Fprintf(out, " - item %s: quantity %.3f, last movement %.3f, movement sum %.3f (%s)\n",
			strconv.FormatInt(f.ItemID, 10), f.Quantity, f.LastAfterQty, f.NetQty, f.Reason)
	}
}

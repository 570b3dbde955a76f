package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/StudioSol/set"
	"github.com/cryptooracle/oraclebot/core"
)

const (
	// Only ledger entries younger than this are treated as the cause
	// of a pnl jump
	ledgerFreshness = 2 * time.Minute

	// Sample size per ledger query; the venue returns newest first
	ledgerSampleSize = 5

	// Dedup memory bound, oldest ids are rotated out
	ledgerMemory = 200
)

// ledgerTracker remembers which funding ledger entries were already
// applied to the deposit offset. Insertion order is preserved so the
// memory bound evicts oldest first.
type ledgerTracker struct {
	seen  *set.LinkedHashSetString
	order []string
}

func newLedgerTracker(ids []string) *ledgerTracker {
	t := &ledgerTracker{seen: set.NewLinkedHashSetString()}
	for _, id := range ids {
		t.add(id)
	}
	return t
}

func (t *ledgerTracker) has(id string) bool {
	return t.seen.InArray(id)
}

func (t *ledgerTracker) add(id string) {
	if t.seen.InArray(id) {
		return
	}
	t.seen.Add(id)
	t.order = append(t.order, id)
	if len(t.order) > ledgerMemory {
		t.seen.Remove(t.order[0])
		t.order = t.order[1:]
	}
}

func (t *ledgerTracker) ids() []string {
	return append([]string(nil), t.order...)
}

// verifyLedger queries the recent funding ledger and applies any
// unseen deposit or withdrawal to the deposit offset so external fund
// movements never masquerade as pnl. Returns the net amount applied.
// Caller holds the manager lock.
func (m *Manager) verifyLedger(ctx context.Context) float64 {
	entries, err := m.broker.Ledger(ctx, "USDT", ledgerSampleSize)
	if err != nil {
		m.log.Warnf("ledger query failed: %v", err)
		return 0
	}

	cutoff := time.Now().Add(-ledgerFreshness)
	var applied float64
	for _, e := range entries {
		if e.Type != core.LedgerDeposit && e.Type != core.LedgerWithdrawal {
			continue
		}
		if e.Time.Before(cutoff) {
			continue
		}
		if m.ledger.has(e.ID) {
			continue
		}

		m.ledger.add(e.ID)
		m.state.DepositOffset += e.Amount
		applied += e.Amount

		verb := "Deposit"
		if e.Type == core.LedgerWithdrawal {
			verb = "Withdrawal"
		}
		m.log.Infof("%s detected: %+.2f %s, deposit offset now %.2f", verb, e.Amount, e.Currency, m.state.DepositOffset)
		m.notify("Funding Detected", fmt.Sprintf("%s of %+.2f %s folded into deposit offset", verb, e.Amount, e.Currency))
	}
	return applied
}

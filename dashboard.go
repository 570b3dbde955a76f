package oraclebot

import (
	"bytes"
	"fmt"
	"os"

	"github.com/cryptooracle/oraclebot/risk"
	"github.com/cryptooracle/oraclebot/trader"
	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
)

// Summary column budget in display cells. CJK summaries are truncated
// by display width, not byte count.
const summaryWidth = 36

var statusIcons = map[trader.Status]string{
	trader.StatusScanning: "👀",
	trader.StatusWaiting:  "⏳",
	trader.StatusDone:     "✅",
	trader.StatusHolding:  "⏸️",
	trader.StatusCooldown: "🧊",
	trader.StatusSkipped:  "🚫",
	trader.StatusBlocked:  "🔒",
	trader.StatusStopped:  "🛑",
	trader.StatusFailed:   "❌",
}

// renderDashboard builds the per-symbol status table. Also serves the
// telegram /status command.
func (b *Bot) renderDashboard() string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"SYMBOL", "REGIME", "PRICE", "PNL%", "SIGNAL", "ST", "SUMMARY"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, symbol := range b.order {
		snap := b.traders[symbol].Snapshot()
		icon, ok := statusIcons[snap.Status]
		if !ok {
			icon = string(snap.Status)
		}
		table.Append([]string{
			snap.Symbol,
			string(snap.Regime),
			fmt.Sprintf("%.6g", snap.Price),
			fmt.Sprintf("%+.2f", snap.PnLRatio*100),
			string(snap.Signal),
			icon,
			runewidth.Truncate(snap.Summary, summaryWidth, "…"),
		})
	}

	table.Render()
	return buf.String()
}

// printDashboard writes the status table and the global risk footer
func (b *Bot) printDashboard(verdict risk.Verdict) {
	fmt.Fprint(os.Stdout, b.renderDashboard())
	fmt.Fprintf(os.Stdout, "equity %.2f USDT | pnl %+.2f (%+.2f%%) | risk factor %.2f\n",
		verdict.Equity, verdict.PnL, verdict.PnLRatio*100, verdict.RiskFactor)
}

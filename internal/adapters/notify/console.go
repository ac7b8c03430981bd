package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out     io.Writer
	table   bool
	reasons bool
}

// NewConsole crea un notificador que escribe a stdout.
// table=false imprime una línea compacta; reasons añade los motivos de exclusión.
func NewConsole(table, reasons bool) *Console {
	return &Console{out: os.Stdout, table: table, reasons: reasons}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table, reasons bool) *Console {
	return &Console{out: w, table: table, reasons: reasons}
}

// Notify imprime el informe en el modo configurado.
func (c *Console) Notify(_ context.Context, report domain.BatchReport) error {
	if len(report.Wallets) == 0 {
		fmt.Fprintf(c.out, "[%s] no wallets evaluated\n", report.StartedAt.Format("15:04:05"))
		return nil
	}

	rows := report.Sorted()
	if c.table {
		c.printFull(report, rows)
	} else {
		c.printCompact(report, rows)
	}

	if c.reasons {
		c.printReasons(rows)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(report domain.BatchReport, rows []domain.WalletReport) {
	counts := countByCohort(rows)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d wallets → SAFE:%d MOD:%d RISKY:%d SUSPECT:%d",
		report.StartedAt.Format("15:04:05"), len(rows),
		counts[domain.CohortSafe], counts[domain.CohortModerate],
		counts[domain.CohortRisky], counts[domain.CohortSuspect])

	for i, w := range rows {
		if i >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s %s", shortWallet(w.Wallet), pnlLabel(w.Display), w.Display.Cohort)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la cabecera del run y la tabla.
func (c *Console) printFull(report domain.BatchReport, rows []domain.WalletReport) {
	fmt.Fprintf(c.out, "\n[%s] run %s — %d wallets, %d failed, %s\n",
		report.StartedAt.Format("15:04:05"), report.RunID, len(rows), report.Failed(),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Wallet", "Type", "Cohort", "PnL", "Realized", "Unrealized", "Open", "Events", "LB", "Copy")

	for i, w := range rows {
		realized, unrealized, open, events := "-", "-", "-", "-"
		if r := w.Result; r != nil {
			realized = money(r.RealizedPnL)
			unrealized = money(r.UnrealizedPnL)
			open = fmt.Sprintf("%d", r.OpenPositions)
			events = fmt.Sprintf("%d", r.EventsProcessed)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortWallet(w.Wallet),
			string(w.Display.WalletType),
			string(w.Display.Cohort),
			pnlLabel(w.Display),
			realized,
			unrealized,
			open,
			events,
			gate(w.Leaderboard != nil && w.Leaderboard.Eligible, w.Leaderboard == nil),
			gate(w.CopyTrade != nil && w.CopyTrade.Eligible, w.CopyTrade == nil),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  PnL = UI-parity mostrado (oculto si SUSPECT) | LB = leaderboard | Copy = copy-trade")
}

// printReasons imprime los motivos de exclusión y los errores por wallet.
func (c *Console) printReasons(rows []domain.WalletReport) {
	fmt.Fprintln(c.out, "=== REASONS ===")
	for _, w := range rows {
		var parts []string
		if w.Error != "" {
			parts = append(parts, "error: "+w.Error)
		}
		if w.Leaderboard != nil && len(w.Leaderboard.Reasons) > 0 {
			parts = append(parts, "lb: "+joinReasons(w.Leaderboard.Reasons))
		}
		if w.CopyTrade != nil && len(w.CopyTrade.Reasons) > 0 {
			parts = append(parts, "copy: "+joinReasons(w.CopyTrade.Reasons))
		}
		if w.Display.Reason != "" {
			parts = append(parts, "cohort: "+w.Display.Reason)
		}
		fmt.Fprintf(c.out, "  %s  %s\n", w.Wallet, strings.Join(parts, " | "))
	}
}

func countByCohort(rows []domain.WalletReport) map[domain.Cohort]int {
	out := make(map[domain.Cohort]int, 4)
	for _, w := range rows {
		out[w.Display.Cohort]++
	}
	return out
}

func pnlLabel(d domain.Display) string {
	if !d.ShouldDisplay {
		return "hidden"
	}
	return money(d.DisplayPnL)
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

func gate(ok, missing bool) string {
	switch {
	case missing:
		return "-"
	case ok:
		return "yes"
	default:
		return "no"
	}
}

func joinReasons(reasons []domain.ReasonCode) string {
	s := make([]string, len(reasons))
	for i, r := range reasons {
		s[i] = string(r)
	}
	return strings.Join(s, ",")
}

// shortWallet abrevia una dirección 0x a 0x1234…abcd.
func shortWallet(w string) string {
	if len(w) <= 12 {
		return w
	}
	return w[:6] + "…" + w[len(w)-4:]
}

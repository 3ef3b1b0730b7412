package notify

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Console implementa ports.EventSink imprimiendo una línea por evento y
// ofrece los reportes tabulares de trades y runs.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	compact bool // oculta skips y señales: solo scans, trades y fallos
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(compact bool) *Console {
	return &Console{out: os.Stdout, compact: compact}
}

// NewConsoleWriter crea un notificador sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer, compact bool) *Console {
	return &Console{out: w, compact: compact}
}

// OnEvent imprime el evento en una línea.
func (c *Console) OnEvent(e domain.Event) {
	if c.compact && (e.Kind == domain.EventSkip || e.Kind == domain.EventSignal) {
		return
	}
	line := formatEvent(e)
	if line == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

func formatEvent(e domain.Event) string {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	prefix := "[" + ts.Local().Format("15:04:05") + "]"

	switch e.Kind {
	case domain.EventRunStart:
		return fmt.Sprintf("%s run %s started | mode %s | capital $%.2f",
			prefix, domain.ShortID(e.RunID), field(e, "mode"), num(e, "allocated"))
	case domain.EventScanStart:
		return fmt.Sprintf("%s scan #%.0f | remaining $%.2f", prefix, num(e, "iteration"), num(e, "remaining"))
	case domain.EventScanStats:
		return fmt.Sprintf("%s %.0f mkts → tradable:%.0f discarded:%.0f candidates:%.0f",
			prefix, num(e, "total"), num(e, "tradable"), num(e, "discarded"), num(e, "candidates"))
	case domain.EventSkip:
		return fmt.Sprintf("%s   skip %-18s %s", prefix, e.Reason, e.Message)
	case domain.EventSignal:
		return fmt.Sprintf("%s   signal %s p=%.3f conf=%.2f price=%.3f ev=%+.3f",
			prefix, field(e, "question"), num(e, "probability"), num(e, "confidence"), num(e, "price"), num(e, "ev"))
	case domain.EventTrade:
		tag := "LIVE"
		if b, _ := e.Fields["simulated"].(bool); b {
			tag = "SIM"
		}
		return fmt.Sprintf("%s >> %s $%.2f @ %.3f %s [%s]",
			prefix, field(e, "side"), num(e, "size"), num(e, "price"), field(e, "question"), tag)
	case domain.EventNoTrade:
		return fmt.Sprintf("%s no trade this scan (%s)", prefix, e.Message)
	case domain.EventFault:
		return fmt.Sprintf("%s !! %s", prefix, e.Message)
	case domain.EventExhausted:
		return fmt.Sprintf("%s budget exhausted: spent $%.2f of $%.2f", prefix, num(e, "spent"), num(e, "allocated"))
	case domain.EventStopped:
		return fmt.Sprintf("%s stopped: %s", prefix, e.Message)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// PrintTrades imprime el historial de trades.
func (c *Console) PrintTrades(trades []domain.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(trades) == 0 {
		fmt.Fprintln(c.out, "\n  No trades recorded.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time", "Market", "Side", "Price", "Size$", "Shares", "P", "Conf", "EV", "Mode", "Status")

	var total float64
	for i, t := range trades {
		mode := "LIVE"
		if t.Simulated {
			mode = "SIM"
		}
		total += t.Size
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.CreatedAt.Local().Format("01-02 15:04"),
			domain.TruncateQuestion(t.Question, t.MarketID, 40),
			string(t.Side),
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("$%.2f", t.Size),
			fmt.Sprintf("%.2f", t.Shares),
			fmt.Sprintf("%.2f", t.Probability),
			fmt.Sprintf("%.2f", t.Confidence),
			fmt.Sprintf("%+.3f", t.Edge),
			mode,
			string(t.Status),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  %d trades | $%.2f deployed\n\n", len(trades), total)
}

// PrintRuns imprime el resumen de los últimos runs.
func (c *Console) PrintRuns(runs []domain.RunSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(runs) == 0 {
		fmt.Fprintln(c.out, "\n  No runs recorded.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Run", "Mode", "Started", "Duration", "Capital", "Spent", "Trades", "Iter", "Faults", "End")

	for _, r := range runs {
		duration := "-"
		if !r.EndedAt.IsZero() {
			duration = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		end := string(r.EndState)
		if r.StopReason != "" {
			end += " (" + truncate(r.StopReason, 30) + ")"
		}
		table.Append(
			domain.ShortID(r.RunID),
			string(r.Mode),
			r.StartedAt.Local().Format("01-02 15:04"),
			duration,
			fmt.Sprintf("$%.2f", r.AllocatedCapital),
			fmt.Sprintf("$%.2f", r.CumulativeSpent),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%d", r.Iterations),
			fmt.Sprintf("%d", r.Faults),
			end,
		)
	}
	table.Render()
}

// PrintSummary imprime el cierre de un run y la distribución de motivos de skip.
func (c *Console) PrintSummary(s domain.RunSummary, skips map[domain.SkipReason]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n=== RUN %s (%s) ===\n", domain.ShortID(s.RunID), s.Mode)
	fmt.Fprintf(c.out, "  State:      %s", s.EndState)
	if s.StopReason != "" {
		fmt.Fprintf(c.out, " (%s)", s.StopReason)
	}
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  Capital:    $%.2f allocated, $%.2f spent, $%.2f remaining\n",
		s.AllocatedCapital, s.CumulativeSpent, s.AllocatedCapital-s.CumulativeSpent)
	fmt.Fprintf(c.out, "  Trades:     %d in %d iterations (%d faults)\n", s.TotalTrades, s.Iterations, s.Faults)

	if len(skips) == 0 {
		fmt.Fprintln(c.out)
		return
	}
	reasons := make([]domain.SkipReason, 0, len(skips))
	for r := range skips {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if skips[reasons[i]] != skips[reasons[j]] {
			return skips[reasons[i]] > skips[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%s=%d", r, skips[r]))
	}
	fmt.Fprintf(c.out, "  Skips:      %s\n\n", strings.Join(parts, " "))
}

// --- helpers ---

func field(e domain.Event, key string) string {
	v, ok := e.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return truncate(s, 50)
	}
	return fmt.Sprint(v)
}

func num(e domain.Event, key string) float64 {
	switch v := e.Fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

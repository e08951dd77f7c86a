package monitor

import (
	"fmt"
	"strconv"
	"strings"

	"xspread/internal/domain/model"
	dsvc "xspread/internal/domain/service"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	Quote string
	Color bool
}

func NewFormatter(quote string) *Formatter {
	return &Formatter{Quote: quote, Color: true}
}

func (f *Formatter) paint(s, c string) string {
	if !f.Color {
		return s
	}
	return colorize(s, c)
}

// Render 把已经排好序、截断好的 Ranking 排成一帧文本；这里不再排序或过滤
func (f *Formatter) Render(r model.Ranking) string {
	var sb strings.Builder

	sb.WriteString(f.paint("[XSPREAD] ", ansiDim))
	sb.WriteString(f.paint("spot vs perpetual", ansiBold))
	if f.Quote != "" {
		sb.WriteString(f.paint(" ("+f.Quote+")", ansiDim))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%s  pairs tracked: %d  spot: %d  perp: %d\n\n",
		r.Ts.Format("2006-01-02 15:04:05"), r.Tracked, r.SpotCount, r.PerpCount)

	f.section(&sb, "Top spot premium (spot > perp)", r.Positive)
	sb.WriteString("\n")
	f.section(&sb, "Top spot discount (spot < perp)", r.Negative)

	return sb.String()
}

func (f *Formatter) section(sb *strings.Builder, title string, rows []model.SpreadRecord) {
	sb.WriteString(f.paint(title, ansiBold))
	sb.WriteString("\n")
	if len(rows) == 0 {
		sb.WriteString(f.paint("  --", ansiDim))
		sb.WriteString("\n")
		return
	}
	fmt.Fprintf(sb, "  %-3s %-14s %16s %16s %14s %10s\n", "#", "SYMBOL", "SPOT", "PERP", "DIFF", "PCT")
	for i, rec := range rows {
		pct := fmt.Sprintf("%+.4f%%", rec.PercentDiff)
		col := ansiYellow
		switch dsvc.DeltaColor(rec.PercentDiff) {
		case +1:
			col = ansiGreen
		case -1:
			col = ansiRed
		}
		fmt.Fprintf(sb, "  %-3d %-14s %16s %16s %14s %s\n",
			i+1,
			rec.Symbol,
			formatPrice(rec.SpotPrice),
			formatPrice(rec.PerpPrice),
			formatPrice(rec.AbsoluteDiff),
			f.paint(fmt.Sprintf("%10s", pct), col),
		)
	}
}

// formatPrice prints up to 8 decimals without trailing zeros.
func formatPrice(v float64) string {
	s := strconv.FormatFloat(v, 'f', 8, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

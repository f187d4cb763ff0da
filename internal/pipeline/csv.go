package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// balanceMarkers identify summary lines that are not transactions.
var balanceMarkers = []string{"opening balance", "closing balance"}

type columns struct {
	date, desc, amount, category int
}

// CSVParser turns statement text into normalized transactions.
// Commas inside quoted cells are not supported.
type CSVParser struct {
	normalizer *Normalizer
	now        func() time.Time
	log        zerolog.Logger
}

// NewCSVParser creates a parser. A nil clock means time.Now.
func NewCSVParser(now func() time.Time, log zerolog.Logger) *CSVParser {
	if now == nil {
		now = time.Now
	}
	return &CSVParser{
		normalizer: NewNormalizer(now),
		now:        now,
		log:        log,
	}
}

// ParseCSV parses text with the wall clock and no logging.
func ParseCSV(text, filename string) []domain.Transaction {
	return NewCSVParser(nil, zerolog.Nop()).Parse(text, filename)
}

// Parse returns the transactions in text sorted newest first. Rows that
// cannot be used are skipped; the result is never nil.
func (p *CSVParser) Parse(text, filename string) []domain.Transaction {
	txs := make([]domain.Transaction, 0)

	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return txs
	}

	cols := detectColumns(splitRow(lines[0]))
	stamp := p.now()
	skipped := 0

	for i, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if isBalanceLine(line) {
			skipped++
			continue
		}

		fields := splitRow(line)
		if len(fields) < 3 {
			skipped++
			continue
		}

		amount, ok := parseAmount(cell(fields, cols.amount))
		if !ok {
			skipped++
			continue
		}

		row := Row{
			Index:       i + 1,
			Date:        cell(fields, cols.date),
			Description: cell(fields, cols.desc),
			Amount:      amount,
			Category:    cell(fields, cols.category),
		}
		txs = append(txs, p.normalizer.Normalize(row, filename, stamp))
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date > txs[j].Date
	})

	p.log.Debug().
		Str("source", filename).
		Int("transactions", len(txs)).
		Int("skipped_rows", skipped).
		Msg("Parsed CSV statement")

	return txs
}

// detectColumns finds column indices by header keyword, falling back to
// date=0, description=1 and amount=3 (or 2 for narrow files).
func detectColumns(header []string) columns {
	c := columns{date: -1, desc: -1, amount: -1, category: -1}

	for i, h := range header {
		h = strings.ToLower(h)
		switch {
		case c.date < 0 && strings.Contains(h, "date"):
			c.date = i
		case c.desc < 0 && containsAny(h, "description", "desc", "merchant", "name"):
			c.desc = i
		case c.amount < 0 && strings.Contains(h, "amount"):
			c.amount = i
		case c.category < 0 && containsAny(h, "category", "type"):
			c.category = i
		}
	}

	if c.date < 0 {
		c.date = 0
	}
	if c.desc < 0 {
		c.desc = 1
	}
	if c.amount < 0 {
		c.amount = 2
		if len(header) > 3 {
			c.amount = 3
		}
	}
	return c
}

func splitRow(line string) []string {
	fields := strings.Split(strings.TrimRight(line, "\r"), ",")
	for i, f := range fields {
		fields[i] = strings.Trim(strings.TrimSpace(f), `"'`)
	}
	return fields
}

func cell(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	return fields[idx]
}

func isBalanceLine(line string) bool {
	lower := strings.ToLower(line)
	for _, m := range balanceMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// parseAmount strips currency symbols and thousands separators. Zero and
// unparseable amounts are rejected.
func parseAmount(raw string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	if cleaned == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsZero() {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Column kinds inferred by Profile.
const (
	KindNumeric     = "numeric"
	KindDatetime    = "datetime"
	KindCategorical = "categorical"
	KindText        = "text"
	KindUnknown     = "unknown"
)

// ColumnSummary captures inferred type and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    string // numeric|datetime|categorical|text|unknown
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Count int
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
	Std   float64
	// Categorical top values
	TopValues    []CategoryCount
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// Report is a markdown-friendly profile of one table.
type Report struct {
	Name string
	Rows int
	Cols []ColumnSummary
}

type colAcc struct {
	nonNil int
	miss   int

	// numeric stats via Welford
	n      int
	sum    float64
	mean   float64
	m2     float64
	min    float64
	max    float64
	numCnt int
	dtCnt  int
	txtCnt int
	cats   map[string]int
	seen   map[string]struct{}
	exText []string
}

// maxDistinct bounds the per-column sets used for distinct counts.
const maxDistinct = 10000

// Profile infers a kind per column from the predominant parsed type and
// computes numeric aggregates over every row.
func Profile(t *Table) *Report {
	rep := &Report{Name: t.Name, Rows: len(t.Rows)}
	cols := make([]*colAcc, len(t.Columns))
	for i := range cols {
		cols[i] = &colAcc{min: math.Inf(1), max: math.Inf(-1), cats: make(map[string]int), seen: make(map[string]struct{})}
	}
	for _, rec := range t.Rows {
		for j, c := range cols {
			v := strings.TrimSpace(rec[j])
			if IsMissing(v) {
				c.miss++
				continue
			}
			c.nonNil++
			if len(c.seen) < maxDistinct {
				c.seen[v] = struct{}{}
			}
			if x, ok := parseNumeric(v); ok {
				c.numCnt++
				c.n++
				c.sum += x
				if x < c.min {
					c.min = x
				}
				if x > c.max {
					c.max = x
				}
				delta := x - c.mean
				c.mean += delta / float64(c.n)
				c.m2 += delta * (x - c.mean)
				continue
			}
			if _, ok := parseTimeMaybe(v); ok {
				c.dtCnt++
				continue
			}
			c.txtCnt++
			if len(c.cats) <= maxDistinct {
				if len(v) <= 64 {
					c.cats[v]++
				}
			}
			if len(c.exText) < 3 {
				c.exText = append(c.exText, v)
			}
		}
	}

	rep.Cols = make([]ColumnSummary, 0, len(cols))
	for idx, c := range cols {
		s := ColumnSummary{Name: t.Columns[idx], NonNull: c.nonNil, Missing: c.miss, Unique: len(c.seen)}
		switch {
		case c.numCnt >= c.dtCnt && c.numCnt >= c.txtCnt && c.numCnt > 0:
			s.Kind = KindNumeric
			s.Count = c.n
			s.Sum = c.sum
			s.Min = c.min
			s.Max = c.max
			s.Mean = c.mean
			if c.n > 1 {
				s.Std = math.Sqrt(c.m2 / float64(c.n-1))
			}
		case c.dtCnt >= c.txtCnt && c.dtCnt > 0:
			s.Kind = KindDatetime
		case len(c.cats) > 0 && len(c.cats) < c.txtCnt:
			s.Kind = KindCategorical
			s.TopValues = topValues(c.cats, 8)
		case c.txtCnt > 0:
			s.Kind = KindText
			s.ExampleTexts = c.exText
		default:
			s.Kind = KindUnknown
		}
		rep.Cols = append(rep.Cols, s)
	}
	return rep
}

func topValues(cats map[string]int, limit int) []CategoryCount {
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > limit {
		tops = tops[:limit]
	}
	return tops
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumeric accepts plain floats, percentages and values with thousands
// separators in either locale.
func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
	raw = strings.TrimSuffix(raw, "%")
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, !math.IsNaN(f)
	}
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	dec := '.'
	if cpos > dpos {
		// "1.234,5" or "0,5"
		dec = ','
		if dpos < 0 && len(raw)-cpos-1 == 3 {
			// "1,234" reads as a thousands group
			dec = '.'
		}
	}
	for _, sep := range []rune{',', '.', ' '} {
		if sep != dec {
			raw = strings.ReplaceAll(raw, string(sep), "")
		}
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Markdown renders the profile for terminals and documents.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case KindNumeric:
			b.WriteString(fmt.Sprintf(": count %d, sum %.6g, min %.4g, max %.4g, mean %.4g, std %.4g", c.Count, c.Sum, c.Min, c.Max, c.Mean, c.Std))
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(": top ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(": e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

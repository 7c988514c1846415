package table

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const missingText = "NaN"

// Head renders the first n rows as a dataframe prints them: index column on
// the left, cells right-aligned and two spaces apart, missing cells as NaN.
// Widths are display widths so wide characters line up.
func (t *Table) Head(n int) string {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	if n == 0 {
		return "Empty DataFrame\nColumns: [" + strings.Join(t.Columns, ", ") + "]\nIndex: []"
	}

	index := make([]string, n)
	indexWidth := 0
	for i := range index {
		index[i] = strconv.Itoa(i)
		indexWidth = max(indexWidth, len(index[i]))
	}

	cells := make([][]string, n)
	widths := make([]int, len(t.Columns))
	for j, c := range t.Columns {
		widths[j] = runewidth.StringWidth(c)
	}
	for i := 0; i < n; i++ {
		cells[i] = make([]string, len(t.Columns))
		for j := range t.Columns {
			v := displayCell(t.Rows[i][j])
			cells[i][j] = v
			widths[j] = max(widths[j], runewidth.StringWidth(v))
		}
	}

	var b strings.Builder
	writeLine := func(lead string, row []string) {
		b.WriteString(runewidth.FillRight(lead, indexWidth))
		for j, v := range row {
			b.WriteString("  ")
			b.WriteString(runewidth.FillLeft(v, widths[j]))
		}
	}
	writeLine("", t.Columns)
	for i := 0; i < n; i++ {
		b.WriteByte('\n')
		writeLine(index[i], cells[i])
	}
	return b.String()
}

// displayCell flattens a value to a single line; missing values print as NaN.
func displayCell(v string) string {
	if IsMissing(v) {
		return missingText
	}
	if strings.ContainsAny(v, "\r\n\t") {
		v = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`, "\t", `\t`).Replace(v)
	}
	return v
}

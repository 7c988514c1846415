// Package prompt builds the system prompt that describes the loaded tables.
package prompt

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/csvchat/internal/table"
)

// SampleRows is how many rows of each table are shown to the model.
const SampleRows = 5

const (
	intro   = "You are a helpful assistant that can analyze CSV data. "
	listing = "The user has uploaded the following CSV files:\n\n"
	closing = "When answering questions about the data, be specific about which file you're referring to. " +
		"You can perform aggregation tasks like counting, summing, averaging, and finding the maximum, minimum, and average values of columns."
)

// System renders the system prompt for set. Tables appear in insertion order.
// A nil or empty set yields the intro and closing only.
func System(set *table.Set) string {
	var b strings.Builder
	b.WriteString(intro)
	if set.Len() > 0 {
		b.WriteString(listing)
		for _, t := range set.Tables() {
			writeTable(&b, t)
		}
	}
	b.WriteString(closing)
	return b.String()
}

func writeTable(b *strings.Builder, t *table.Table) {
	rows, cols := t.Shape()
	fmt.Fprintf(b, "File: %s\n", t.Name)
	fmt.Fprintf(b, "Shape: %d rows x %d columns\n", rows, cols)
	fmt.Fprintf(b, "Columns: %s\n", strings.Join(t.Columns, ", "))
	b.WriteString("Sample data (first 5 rows):\n")
	b.WriteString(t.Head(SampleRows))
	b.WriteString("\n\n")
}

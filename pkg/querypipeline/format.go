package querypipeline

import (
	"fmt"
	"strings"
)

const DefaultPreviewRows = 10

// FormatResults renders a short plain-text table of the first maxRows rows
// for chat display.
func FormatResults(columns []string, rows []map[string]any, maxRows int) string {
	if len(rows) == 0 {
		return "No results found."
	}
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}

	shown := min(len(rows), maxRows)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d rows. Showing first %d:\n\n", len(rows), shown)

	header := strings.Join(columns, " | ")
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("-", len(header)) + "\n")

	values := make([]string, len(columns))
	for _, row := range rows[:shown] {
		for i, c := range columns {
			if v, ok := row[c]; ok && v != nil {
				values[i] = fmt.Sprint(v)
			} else {
				values[i] = ""
			}
		}
		b.WriteString(strings.Join(values, " | ") + "\n")
	}

	if len(rows) > maxRows {
		fmt.Fprintf(&b, "\n... and %d more rows", len(rows)-maxRows)
	}
	return b.String()
}

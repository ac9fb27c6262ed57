package querypipeline

import (
	"fmt"
	"strings"

	"chatserver-be/pkg/warehouse"
)

const SystemPrompt = `You are a SQL query assistant for an analytics warehouse.
You help users query data by writing safe, read-only SQL.

Rules:
1. ONLY generate a single SELECT query (a WITH clause is allowed). Never modify data.
2. Only use the tables listed in the context. Do not reference any other table.
3. Always include a LIMIT clause (max 1000 rows).
4. Do not use SQL comments.

Wrap the query in a ` + "```sql" + ` code block.`

// BuildPrompt lists the permitted tables with whatever column metadata is
// available, followed by the user's request.
func BuildPrompt(question string, allowList []string, schemas []warehouse.TableSchema) string {
	described := make(map[string]warehouse.TableSchema, len(schemas))
	for _, s := range schemas {
		described[strings.ToLower(s.Table)] = s
	}

	var b strings.Builder
	b.WriteString("Available tables and their schemas:\n\n")
	for _, table := range allowList {
		fmt.Fprintf(&b, "Table: %s\n", table)
		s, ok := described[strings.ToLower(table)]
		if !ok {
			b.WriteString("\n")
			continue
		}
		b.WriteString("Columns:\n")
		for _, c := range s.Columns {
			fmt.Fprintf(&b, "  - %s (%s)", c.Name, c.DataType)
			if c.Comment != "" {
				fmt.Fprintf(&b, " - %s", c.Comment)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nUser request: %s", strings.TrimSpace(question))
	return b.String()
}

package schema

import (
	"fmt"
	"strings"

	"github.com/fedsearch/fedsearch/internal/types"
)

// DescribeTable renders the natural-language description of a table that
// gets embedded for relevance ranking. The wording is stable so identical
// structures always embed identically.
func DescribeTable(td types.TableDescriptor) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table %s: columns ", td.Name)

	cols := make([]string, 0, len(td.Columns))

	for _, col := range td.Columns {
		part := fmt.Sprintf("%s (%s", col.Name, strings.ToLower(col.Type))

		if col.PrimaryKey {
			part += ", primary key"
		}

		if col.Nullable {
			part += ", nullable"
		}

		cols = append(cols, part+")")
	}

	b.WriteString(strings.Join(cols, ", "))

	if td.RowEstimate > 0 {
		fmt.Fprintf(&b, "; approx. %d rows", td.RowEstimate)
	}

	if samples := sampleSummary(td); samples != "" {
		b.WriteString("; sample values: " + samples)
	}

	return b.String()
}

func sampleSummary(td types.TableDescriptor) string {
	var parts []string

	for _, col := range td.Columns {
		if len(col.Samples) == 0 {
			continue
		}

		parts = append(parts, col.Name+": "+strings.Join(col.Samples, ", "))
	}

	return strings.Join(parts, "; ")
}

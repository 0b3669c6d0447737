package sqlgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fedsearch/fedsearch/internal/types"
)

// Confidence scoring for the deterministic templates. A rule-based query
// never scores at or above llmConfidence.
const (
	confidenceBase      = 0.5
	confidenceColumns   = 0.6
	confidenceAggregate = 0.7
	confidenceBoost     = 0.1
	ruleConfidenceCap   = 0.75
)

// Keyword patterns recognized by the template matcher.
var (
	countPattern     = regexp.MustCompile(`(?i)\b(?:count|how many|number of)\s+(\w+)`)
	aggregatePattern = regexp.MustCompile(`(?i)\b(sum|average|avg|max|maximum|min|minimum)\s+(?:of\s+)?(\w+)`)
	selectPattern    = regexp.MustCompile(`(?i)\b(?:show|get|find|select|list)\s+(?:all|every)?\s*(\w+)`)
	filterPattern    = regexp.MustCompile(`(?i)\b(?:where|with|having)\s+(\w+)\s*(=|is|equals|contains)\s*["']?([^"']+)`)
	orderPattern     = regexp.MustCompile(`(?i)\b(?:order|sort)(?:ed)?\s+by\s+(\w+)\s*(desc|descending|asc|ascending)?`)
	limitPattern     = regexp.MustCompile(`(?i)\b(?:top|first|limit)\s+(\d+)`)
	joinPattern      = regexp.MustCompile(`(?i)\b(?:join|combine|merge)\s+(\w+)\s+(?:and|with)\s+(\w+)`)
	groupPattern     = regexp.MustCompile(`(?i)\bgroup(?:ed)?\s+by\s+(\w+)`)
	unboundedPattern = regexp.MustCompile(`(?i)\b(?:all|every)\b`)

	// A filter value captured mid-sentence stops at the next clause keyword.
	clauseStartPattern = regexp.MustCompile(`(?i)\s(?:order(?:ed)?\s+by|sort(?:ed)?\s+by|group(?:ed)?\s+by|limit\s+\d|top\s+\d|first\s+\d)\b`)
)

// ruleQuery is the outcome of deterministic template matching.
type ruleQuery struct {
	SQL        string
	Tables     []string
	Confidence float64
}

// queryParts accumulates clause fragments before assembly.
type queryParts struct {
	selectList []string
	from       string
	joins      []string
	where      []string
	groupBy    []string
	orderBy    []string
	limit      int
}

func (p queryParts) build() string {
	var b strings.Builder

	b.WriteString("SELECT ")

	if len(p.selectList) > 0 {
		b.WriteString(strings.Join(p.selectList, ", "))
	} else {
		b.WriteString("*")
	}

	b.WriteString(" FROM ")
	b.WriteString(p.from)

	for _, join := range p.joins {
		b.WriteString(" ")
		b.WriteString(join)
	}

	if len(p.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(p.where, " AND "))
	}

	if len(p.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(p.groupBy, ", "))
	}

	if len(p.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(p.orderBy, ", "))
	}

	if p.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", p.limit)
	}

	return b.String()
}

// generateWithRules builds a query from keyword templates against the most
// relevant table. tables must be non-empty; the first entry is the primary
// candidate and the rest are only consulted for JOIN requests.
func generateWithRules(nlQuery string, tables []types.TableDescriptor) ruleQuery {
	nl := strings.ToLower(nlQuery)
	primary := tables[0]

	parts := queryParts{from: primary.Name}
	refs := []string{primary.Name}
	confidence := confidenceBase

	if m := joinPattern.FindStringSubmatch(nl); m != nil {
		if left, right, cond, ok := resolveJoin(m[1], m[2], tables); ok {
			primary = left
			parts.from = left.Name
			parts.joins = append(parts.joins,
				fmt.Sprintf("JOIN %s ON %s", right.Name, cond))
			refs = []string{left.Name, right.Name}
			confidence = confidenceColumns
		}
	}

	if countPattern.MatchString(nl) {
		parts.selectList = []string{"COUNT(*)"}
		confidence = confidenceAggregate
	}

	if m := aggregatePattern.FindStringSubmatch(nl); m != nil {
		if col, ok := findColumn(m[2], primary); ok {
			parts.selectList = []string{fmt.Sprintf("%s(%s)", aggregateFunc(m[1]), col)}
			confidence = confidenceAggregate
		}
	}

	if len(parts.selectList) == 0 && selectPattern.MatchString(nl) {
		if cols := mentionedColumns(nl, primary); len(cols) > 0 {
			parts.selectList = cols
			confidence = confidenceColumns
		}
	}

	if m := filterPattern.FindStringSubmatch(nl); m != nil {
		if col, ok := findColumn(m[1], primary); ok {
			parts.where = append(parts.where, filterCondition(col, m[2], filterValue(m[3])))
			confidence += confidenceBoost
		}
	}

	if m := groupPattern.FindStringSubmatch(nl); m != nil {
		if col, ok := findColumn(m[1], primary); ok {
			parts.groupBy = append(parts.groupBy, col)

			switch {
			case len(parts.selectList) == 0:
				parts.selectList = []string{col, "COUNT(*)"}
			case len(parts.selectList) == 1 && strings.Contains(parts.selectList[0], "("):
				parts.selectList = []string{col, parts.selectList[0]}
			}

			confidence += confidenceBoost
		}
	}

	if m := orderPattern.FindStringSubmatch(nl); m != nil {
		if col, ok := findColumn(m[1], primary); ok {
			direction := "ASC"
			if strings.Contains(strings.ToLower(m[2]), "desc") {
				direction = "DESC"
			}

			parts.orderBy = append(parts.orderBy, col+" "+direction)
			confidence += confidenceBoost
		}
	}

	if m := limitPattern.FindStringSubmatch(nl); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			parts.limit = n
		}
	} else if !unboundedPattern.MatchString(nl) {
		parts.limit = defaultRowLimit
	}

	if confidence > ruleConfidenceCap {
		confidence = ruleConfidenceCap
	}

	return ruleQuery{
		SQL:        parts.build(),
		Tables:     refs,
		Confidence: confidence,
	}
}

func aggregateFunc(word string) string {
	switch strings.ToLower(word) {
	case "average", "avg":
		return "AVG"
	case "max", "maximum":
		return "MAX"
	case "min", "minimum":
		return "MIN"
	default:
		return "SUM"
	}
}

// findColumn resolves a natural-language word to a column on tbl, trying an
// exact name match, then substring containment either way, then matching any
// underscore-separated part of the word.
func findColumn(word string, tbl types.TableDescriptor) (string, bool) {
	lower := strings.ToLower(word)

	for _, col := range tbl.Columns {
		if strings.ToLower(col.Name) == lower {
			return col.Name, true
		}
	}

	for _, col := range tbl.Columns {
		name := strings.ToLower(col.Name)
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return col.Name, true
		}
	}

	for _, col := range tbl.Columns {
		name := strings.ToLower(col.Name)
		for _, part := range strings.Split(lower, "_") {
			if part != "" && strings.Contains(name, part) {
				return col.Name, true
			}
		}
	}

	return "", false
}

// mentionedColumns returns the columns of tbl whose names appear as whole
// words in the request, in schema order.
func mentionedColumns(nl string, tbl types.TableDescriptor) []string {
	words := make(map[string]bool)
	for _, w := range identifierPattern.FindAllString(nl, -1) {
		words[strings.ToLower(w)] = true
	}

	var cols []string

	for _, col := range tbl.Columns {
		if words[strings.ToLower(col.Name)] {
			cols = append(cols, col.Name)
		}
	}

	return cols
}

// filterCondition renders one WHERE predicate. The "contains" operator maps
// to LIKE; equality comparisons leave numeric values unquoted.
func filterCondition(col, operator, value string) string {
	switch operator {
	case "=", "is", "equals":
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return fmt.Sprintf("%s = %s", col, value)
		}

		return fmt.Sprintf("%s = '%s'", col, escapeSingleQuotes(value))
	default:
		return fmt.Sprintf("%s LIKE '%%%s%%'", col, escapeSingleQuotes(value))
	}
}

func escapeSingleQuotes(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// filterValue trims the captured value at the next clause keyword so a
// request like "where status is active sorted by name" keeps only "active".
func filterValue(raw string) string {
	value := strings.TrimSpace(raw)
	if loc := clauseStartPattern.FindStringIndex(value); loc != nil {
		value = value[:loc[0]]
	}

	return strings.Trim(strings.TrimSpace(value), `"'`)
}

// resolveJoin maps two natural-language table words onto known tables and
// derives a join condition from a foreign-key naming convention, falling
// back to any column name the two tables share.
func resolveJoin(leftWord, rightWord string, tables []types.TableDescriptor) (types.TableDescriptor, types.TableDescriptor, string, bool) {
	left, ok := findTable(leftWord, tables)
	if !ok {
		return types.TableDescriptor{}, types.TableDescriptor{}, "", false
	}

	right, ok := findTable(rightWord, tables)
	if !ok || strings.EqualFold(left.Name, right.Name) {
		return types.TableDescriptor{}, types.TableDescriptor{}, "", false
	}

	if cond, ok := foreignKeyCondition(left, right); ok {
		return left, right, cond, true
	}

	if cond, ok := foreignKeyCondition(right, left); ok {
		return left, right, cond, true
	}

	for _, col := range left.Columns {
		if _, ok := right.Column(col.Name); ok {
			return left, right, fmt.Sprintf("%s.%s = %s.%s",
				left.Name, col.Name, right.Name, col.Name), true
		}
	}

	return types.TableDescriptor{}, types.TableDescriptor{}, "", false
}

// foreignKeyCondition looks for the <right-singular>_id column on left
// pointing at right's id column.
func foreignKeyCondition(left, right types.TableDescriptor) (string, bool) {
	fk := strings.TrimSuffix(strings.ToLower(right.Name), "s") + "_id"

	fkCol, ok := left.Column(fk)
	if !ok {
		return "", false
	}

	idCol, ok := right.Column("id")
	if !ok {
		return "", false
	}

	return fmt.Sprintf("%s.%s = %s.%s", left.Name, fkCol.Name, right.Name, idCol.Name), true
}

func findTable(word string, tables []types.TableDescriptor) (types.TableDescriptor, bool) {
	lower := strings.ToLower(word)

	for _, tbl := range tables {
		if strings.ToLower(tbl.Name) == lower {
			return tbl, true
		}
	}

	for _, tbl := range tables {
		name := strings.ToLower(tbl.Name)
		if strings.TrimSuffix(name, "s") == strings.TrimSuffix(lower, "s") {
			return tbl, true
		}
	}

	return types.TableDescriptor{}, false
}

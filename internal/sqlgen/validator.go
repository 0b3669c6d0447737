package sqlgen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/fedsearch/fedsearch/internal/types"
)

// defaultRowLimit bounds statements that arrive without an explicit LIMIT.
const defaultRowLimit = 100

// suggestionMaxDistance is the largest edit distance still offered as a
// "did you mean" hint.
const suggestionMaxDistance = 3

var (
	dangerousKeywordPattern = regexp.MustCompile(
		`(?i)\b(drop|delete|truncate|alter|create|insert|update|grant|revoke|attach|detach|pragma|merge|exec|execute|call|vacuum|copy)\b`)
	tautologyPattern       = regexp.MustCompile(`(?i)\b(?:or|and)\s+(\w+)\s*=\s*(\w+)`)
	boundedPattern         = regexp.MustCompile(`(?i)\b(?:limit|top)\s+\d+\b`)
	tableRefPattern        = regexp.MustCompile(`(?i)\b(?:from|join)\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s+(?:as\s+)?([A-Za-z_][A-Za-z0-9_]*))?`)
	qualifiedColumnPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)
	ctePattern             = regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]*)\s+as\s*\(`)

	commentMarkers = []string{"--", "/*", "*/"}
)

// reservedAfterTable are keywords that may follow a table reference and must
// not be mistaken for an alias.
var reservedAfterTable = map[string]bool{
	"where": true, "on": true, "join": true, "inner": true, "left": true,
	"right": true, "full": true, "cross": true, "outer": true, "natural": true,
	"group": true, "order": true, "having": true, "limit": true, "offset": true,
	"union": true, "intersect": true, "except": true, "using": true,
}

// Result reports a validation outcome. SQL carries the statement to execute:
// trailing semicolons are stripped and an implicit LIMIT is appended when the
// statement had none.
type Result struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
	SQL     string  `json:"sql"`
}

// Validator screens SQL before it may reach a backend. Checks run in a fixed
// order and the first failure rejects the statement.
type Validator struct {
	rowLimit int
}

// NewValidator builds a validator that injects rowLimit as the implicit
// bound. Non-positive values fall back to the default.
func NewValidator(rowLimit int) *Validator {
	if rowLimit <= 0 {
		rowLimit = defaultRowLimit
	}

	return &Validator{rowLimit: rowLimit}
}

// Validate enforces, in order: a single statement, a read-only verb,
// absence of dangerous keywords and injection markers outside string
// literals, identifier existence against the snapshot, and an implicit row
// bound. A rejected Result keeps the offending SQL for diagnostics.
func (v *Validator) Validate(sqlText string, snapshot *types.SchemaSnapshot) Result {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return rejected(trimmed, "empty statement")
	}

	masked := maskStringLiterals(trimmed)

	if n := countStatements(masked); n > 1 {
		return rejected(trimmed, fmt.Sprintf("expected a single statement, found %d", n))
	}

	// A single trailing semicolon is tolerated and stripped.
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	masked = maskStringLiterals(trimmed)

	switch head := firstKeyword(masked); head {
	case "select":
	case "with":
		if !withResolvesToSelect(masked) {
			return rejected(trimmed, "WITH statement must resolve to a SELECT")
		}
	case "":
		return rejected(trimmed, "statement has no leading keyword")
	default:
		return rejected(trimmed,
			fmt.Sprintf("only SELECT statements are allowed, got %s", strings.ToUpper(head)))
	}

	if kw := dangerousKeywordPattern.FindString(masked); kw != "" {
		return rejected(trimmed, fmt.Sprintf("dangerous keyword %s", strings.ToUpper(kw)))
	}

	for _, marker := range commentMarkers {
		if strings.Contains(masked, marker) {
			return rejected(trimmed, fmt.Sprintf("comment marker %q is not allowed", marker))
		}
	}

	if m := tautologyPattern.FindStringSubmatch(masked); m != nil && strings.EqualFold(m[1], m[2]) {
		return rejected(trimmed, fmt.Sprintf("tautological predicate %s = %s", m[1], m[2]))
	}

	if reason := checkIdentifiers(masked, snapshot); reason != "" {
		return rejected(trimmed, reason)
	}

	if !boundedPattern.MatchString(masked) {
		trimmed = fmt.Sprintf("%s LIMIT %d", trimmed, v.rowLimit)
	}

	return Result{Verdict: VerdictAccepted, SQL: trimmed}
}

func rejected(sqlText, reason string) Result {
	return Result{Verdict: VerdictRejected, Reason: reason, SQL: sqlText}
}

// maskStringLiterals blanks the contents of quoted regions so structural
// scans cannot be fooled by quoted text. A doubled quote inside a region is
// the SQL escape and stays inside it. Offsets are preserved.
func maskStringLiterals(sqlText string) string {
	out := []rune(sqlText)

	var quote rune

	for i := 0; i < len(out); i++ {
		ch := out[i]

		if quote != 0 {
			if ch == quote {
				if i+1 < len(out) && out[i+1] == quote {
					out[i], out[i+1] = ' ', ' '
					i++

					continue
				}

				quote = 0

				continue
			}

			out[i] = ' '

			continue
		}

		if ch == '\'' || ch == '"' {
			quote = ch
		}
	}

	return string(out)
}

// countStatements counts non-empty semicolon-separated segments. The input
// is already masked, so literal semicolons do not split.
func countStatements(masked string) int {
	count := 0

	for _, part := range strings.Split(masked, ";") {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}

	return count
}

func firstKeyword(masked string) string {
	trimmed := strings.TrimLeft(masked, " \t\r\n(")

	if loc := identifierPattern.FindStringIndex(trimmed); loc != nil && loc[0] == 0 {
		return strings.ToLower(trimmed[:loc[1]])
	}

	return ""
}

// withResolvesToSelect reports whether the outer body of a WITH statement is
// a SELECT. CTE bodies sit inside parentheses, so the verb is the first
// SELECT keyword at paren depth zero.
func withResolvesToSelect(masked string) bool {
	depth := 0

	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
		}

		if depth == 0 && keywordAt(masked, i, "select") {
			return true
		}
	}

	return false
}

// keywordAt reports whether the word starting at i equals keyword,
// case-insensitively and on word boundaries.
func keywordAt(s string, i int, keyword string) bool {
	if i+len(keyword) > len(s) {
		return false
	}

	if !strings.EqualFold(s[i:i+len(keyword)], keyword) {
		return false
	}

	if i > 0 && isIdentByte(s[i-1]) {
		return false
	}

	if i+len(keyword) < len(s) && isIdentByte(s[i+len(keyword)]) {
		return false
	}

	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// checkIdentifiers allow-lists table references and table-qualified columns
// against the snapshot. CTE names declared by the statement count as known
// tables; unqualified columns cannot be attributed and are not checked.
func checkIdentifiers(masked string, snapshot *types.SchemaSnapshot) string {
	if snapshot == nil {
		return ""
	}

	ctes := make(map[string]bool)
	for _, m := range ctePattern.FindAllStringSubmatch(masked, -1) {
		ctes[strings.ToLower(m[1])] = true
	}

	aliases := make(map[string]string)

	for _, m := range tableRefPattern.FindAllStringSubmatch(masked, -1) {
		name := m[1]
		alias := strings.ToLower(m[2])

		if ctes[strings.ToLower(name)] {
			continue
		}

		if _, ok := snapshot.Table(name); !ok {
			reason := fmt.Sprintf("unknown table %q", name)
			if near, ok := nearestIdentifier(name, snapshot); ok {
				reason += fmt.Sprintf(", did you mean %q?", near)
			}

			return reason
		}

		if alias != "" && !reservedAfterTable[alias] {
			aliases[alias] = name
		}
	}

	for _, m := range qualifiedColumnPattern.FindAllStringSubmatch(masked, -1) {
		qualifier, column := m[1], m[2]

		target := qualifier
		if mapped, ok := aliases[strings.ToLower(qualifier)]; ok {
			target = mapped
		}

		if ctes[strings.ToLower(target)] {
			continue
		}

		tbl, ok := snapshot.Table(target)
		if !ok {
			continue
		}

		if _, ok := tbl.Column(column); !ok {
			reason := fmt.Sprintf("unknown column %q on table %q", column, tbl.Name)
			if near, ok := nearestIdentifier(column, snapshot); ok {
				reason += fmt.Sprintf(", did you mean %q?", near)
			}

			return reason
		}
	}

	return ""
}

// nearestIdentifier returns the snapshot identifier closest to name by edit
// distance, when one is close enough to be a plausible typo.
func nearestIdentifier(name string, snapshot *types.SchemaSnapshot) (string, bool) {
	lower := strings.ToLower(name)

	best := ""
	bestDist := suggestionMaxDistance + 1

	for _, id := range snapshot.Identifiers() {
		dist := levenshtein.DistanceForStrings(
			[]rune(lower), []rune(strings.ToLower(id)), levenshtein.DefaultOptions)
		if dist < bestDist {
			best, bestDist = id, dist
		}
	}

	return best, bestDist <= suggestionMaxDistance
}

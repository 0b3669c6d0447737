// Package sqlgen converts natural-language queries into validated SQL. A
// language-model strategy is tried first when one is configured; any failure
// there falls back to deterministic rule templates, so generation degrades
// instead of erroring when the model is absent or misbehaves.
package sqlgen

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/schema"
	"github.com/fedsearch/fedsearch/internal/types"
)

// Method records which strategy produced a query.
type Method string

const (
	MethodLLM       Method = "llm"
	MethodRuleBased Method = "rule_based"
)

// Verdict is the validation outcome attached to every generated query.
type Verdict string

const (
	VerdictAccepted Verdict = "ACCEPTED"
	VerdictRejected Verdict = "REJECTED"
)

// llmConfidence is carried by model output that survives validation. Rule
// templates always score below it.
const llmConfidence = 0.8

// GeneratedQuery is the full outcome of one generation attempt. SQLText is
// only executable when Verdict is ACCEPTED; a rejected query keeps its text
// and reason for diagnostics but must never reach a backend.
type GeneratedQuery struct {
	NLText     string     `json:"nl_text"`
	SQLText    string     `json:"sql_text"`
	Method     Method     `json:"method"`
	Verdict    Verdict    `json:"verdict"`
	Reason     string     `json:"reason,omitempty"`
	Confidence float64    `json:"confidence"`
	Tables     []string   `json:"tables,omitempty"`
	Alternates [][]string `json:"alternates,omitempty"`
}

// Accepted reports whether the query may be executed.
func (q *GeneratedQuery) Accepted() bool {
	return q.Verdict == VerdictAccepted
}

// modelService is the slice of the language-model client the generator uses.
type modelService interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Available(ctx context.Context) bool
	Name() string
}

// schemaIndex is the slice of the schema indexer the generator consumes.
type schemaIndex interface {
	FindRelevantTables(ctx context.Context, nlQuery, connectionID string, topK int) ([]types.TableDescriptor, error)
	Snapshot(connectionID string) (types.SchemaSnapshot, bool)
}

// Generator turns natural language into validated SQL for one connection's
// schema.
type Generator struct {
	index     schemaIndex
	model     modelService
	validator *Validator
	topK      int
}

// NewGenerator wires a generator over the schema index. model may be nil
// when no language model is configured.
func NewGenerator(index schemaIndex, model modelService, validator *Validator, topK int) *Generator {
	if validator == nil {
		validator = NewValidator(0)
	}

	return &Generator{
		index:     index,
		model:     model,
		validator: validator,
		topK:      topK,
	}
}

// Generate produces a validated query for nlQuery against the named
// connection. The returned query carries a REJECTED verdict rather than an
// error when the input cannot be translated safely; errors are reserved for
// schema lookup failures.
func (g *Generator) Generate(ctx context.Context, nlQuery, connectionID string) (*GeneratedQuery, error) {
	tables, err := g.index.FindRelevantTables(ctx, nlQuery, connectionID, g.topK)
	if err != nil {
		return nil, err
	}

	gq := &GeneratedQuery{NLText: nlQuery}
	if len(tables) == 0 {
		gq.Method = MethodRuleBased
		gq.Verdict = VerdictRejected
		gq.Reason = "no matching schema"

		return gq, nil
	}

	snapshot, ok := g.index.Snapshot(connectionID)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrTypeSchema,
			"no schema snapshot for connection %q", connectionID)
	}

	gq.Alternates = alternateTableSets(tables)

	if g.model != nil && g.model.Available(ctx) {
		sqlText, err := g.generateWithModel(ctx, nlQuery, tables)
		if err != nil {
			logging.Warn("model generation failed, falling back to rules",
				"model", g.model.Name(), "connection_id", connectionID, "error", err)
		} else {
			res := g.validator.Validate(sqlText, &snapshot)
			if res.Verdict == VerdictAccepted {
				gq.SQLText = res.SQL
				gq.Method = MethodLLM
				gq.Verdict = VerdictAccepted
				gq.Confidence = llmConfidence
				gq.Tables = referencedTables(res.SQL, tables)

				return gq, nil
			}

			logging.Warn("model SQL rejected, falling back to rules",
				"model", g.model.Name(), "reason", res.Reason)
		}
	}

	rq := generateWithRules(nlQuery, tables)
	res := g.validator.Validate(rq.SQL, &snapshot)

	gq.Method = MethodRuleBased
	gq.Verdict = res.Verdict
	gq.Tables = rq.Tables

	if res.Verdict == VerdictAccepted {
		gq.SQLText = res.SQL
		gq.Confidence = rq.Confidence
	} else {
		gq.SQLText = rq.SQL
		gq.Reason = res.Reason
	}

	return gq, nil
}

func (g *Generator) generateWithModel(ctx context.Context, nlQuery string, tables []types.TableDescriptor) (string, error) {
	raw, err := g.model.Complete(ctx, buildPrompt(nlQuery, tables))
	if err != nil {
		return "", err
	}

	sqlText := stripMarkdownSQL(raw)
	if sqlText == "" {
		return "", apperrors.New(apperrors.ErrTypeValidation, "model returned no SQL")
	}

	return sqlText, nil
}

const promptTemplate = `You are an expert at converting natural language requests into SQL queries.
Generate a SQL query for the request below using only the provided schema.

Schema:
%s

Request: %q

Requirements:
1. Use only tables and columns from the schema above
2. Return a single read-only SELECT statement
3. Include appropriate JOINs when the request spans multiple tables
4. Add a reasonable LIMIT when the request does not specify one

Return the SQL query only, no explanation.`

// buildPrompt embeds the retrieved table descriptions so the model is
// constrained to schema that actually exists.
func buildPrompt(nlQuery string, tables []types.TableDescriptor) string {
	descriptions := make([]string, len(tables))
	for i, tbl := range tables {
		if tbl.Description != "" {
			descriptions[i] = tbl.Description
		} else {
			descriptions[i] = schema.DescribeTable(tbl)
		}
	}

	return fmt.Sprintf(promptTemplate, strings.Join(descriptions, "\n"), nlQuery)
}

var markdownFencePattern = regexp.MustCompile("(?i)```(?:sql)?")

// stripMarkdownSQL unwraps a completion that arrived fenced in a markdown
// code block and collapses runs of whitespace to single spaces.
func stripMarkdownSQL(raw string) string {
	cleaned := markdownFencePattern.ReplaceAllString(raw, " ")

	return strings.Join(strings.Fields(cleaned), " ")
}

// referencedTables returns the candidate tables whose names appear as words
// in the generated SQL, in relevance order.
func referencedTables(sqlText string, tables []types.TableDescriptor) []string {
	words := make(map[string]bool)
	for _, w := range identifierPattern.FindAllString(sqlText, -1) {
		words[strings.ToLower(w)] = true
	}

	var refs []string

	for _, tbl := range tables {
		if words[strings.ToLower(tbl.Name)] {
			refs = append(refs, tbl.Name)
		}
	}

	return refs
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// alternateTableSets keeps the lower-relevance candidates so an ambiguous
// request can be retried against a different table.
func alternateTableSets(tables []types.TableDescriptor) [][]string {
	if len(tables) < 2 {
		return nil
	}

	alternates := make([][]string, 0, len(tables)-1)
	for _, tbl := range tables[1:] {
		alternates = append(alternates, []string{tbl.Name})
	}

	return alternates
}

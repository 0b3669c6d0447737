package sqlgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/testutil"
	"github.com/fedsearch/fedsearch/internal/types"
)

type fakeIndex struct {
	tables   []types.TableDescriptor
	findErr  error
	snapshot *types.SchemaSnapshot
	lastTopK int
}

func (f *fakeIndex) FindRelevantTables(_ context.Context, _, _ string, topK int) ([]types.TableDescriptor, error) {
	f.lastTopK = topK

	return f.tables, f.findErr
}

func (f *fakeIndex) Snapshot(string) (types.SchemaSnapshot, bool) {
	if f.snapshot == nil {
		return types.SchemaSnapshot{}, false
	}

	return *f.snapshot, true
}

func newTestIndex() *fakeIndex {
	snap := testSnapshot()

	return &fakeIndex{tables: snap.Tables, snapshot: snap}
}

func TestGenerator_NoMatchingSchema(t *testing.T) {
	idx := &fakeIndex{snapshot: testSnapshot()}
	g := NewGenerator(idx, nil, NewValidator(100), 3)

	gq, err := g.Generate(context.Background(), "show anything", "sales")

	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, gq.Verdict)
	assert.Equal(t, "no matching schema", gq.Reason)
	assert.Empty(t, gq.SQLText)
	assert.False(t, gq.Accepted())
}

func TestGenerator_ModelPathAccepted(t *testing.T) {
	idx := newTestIndex()
	model := testutil.NewMockModel(
		testutil.WithCompletion("```sql\nSELECT id, total\nFROM orders\nWHERE status = 'paid'\nLIMIT 10\n```"),
	)
	g := NewGenerator(idx, model, NewValidator(100), 3)

	gq, err := g.Generate(context.Background(), "paid orders", "sales")

	require.NoError(t, err)
	assert.Equal(t, MethodLLM, gq.Method)
	assert.Equal(t, VerdictAccepted, gq.Verdict)
	assert.Equal(t, "SELECT id, total FROM orders WHERE status = 'paid' LIMIT 10", gq.SQLText)
	assert.InDelta(t, llmConfidence, gq.Confidence, 1e-9)
	assert.Equal(t, []string{"orders"}, gq.Tables)
	assert.True(t, gq.Accepted())

	require.Len(t, model.Prompts(), 1)
	assert.Contains(t, model.Prompts()[0], "orders")
	assert.Contains(t, model.Prompts()[0], "paid orders")
	assert.Contains(t, model.Prompts()[0], "single read-only SELECT")
}

func TestGenerator_ModelErrorFallsBackToRules(t *testing.T) {
	idx := newTestIndex()
	model := testutil.NewMockModel(testutil.WithModelError(errors.New("connection refused")))
	g := NewGenerator(idx, model, NewValidator(100), 3)

	gq, err := g.Generate(context.Background(), "how many orders", "sales")

	require.NoError(t, err)
	assert.Equal(t, MethodRuleBased, gq.Method)
	assert.Equal(t, VerdictAccepted, gq.Verdict)
	assert.Equal(t, "SELECT COUNT(*) FROM orders LIMIT 100", gq.SQLText)
	assert.InDelta(t, 0.7, gq.Confidence, 1e-9)
	assert.Equal(t, []string{"orders"}, gq.Tables)
}

func TestGenerator_InvalidModelSQLFallsBackToRules(t *testing.T) {
	idx := newTestIndex()
	model := testutil.NewMockModel(testutil.WithCompletion("DROP TABLE orders"))
	g := NewGenerator(idx, model, NewValidator(100), 3)

	gq, err := g.Generate(context.Background(), "list orders", "sales")

	require.NoError(t, err)
	assert.Equal(t, MethodRuleBased, gq.Method)
	assert.Equal(t, VerdictAccepted, gq.Verdict)
	assert.Equal(t, "SELECT * FROM orders LIMIT 100", gq.SQLText)
}

func TestGenerator_ModelUnavailableSkipsCompletion(t *testing.T) {
	idx := newTestIndex()
	model := testutil.NewMockModel(testutil.WithUnavailable(), testutil.WithCompletion("SELECT 1"))
	g := NewGenerator(idx, model, NewValidator(100), 3)

	gq, err := g.Generate(context.Background(), "list orders", "sales")

	require.NoError(t, err)
	assert.Equal(t, MethodRuleBased, gq.Method)
	assert.Empty(t, model.Prompts())
}

func TestGenerator_NilModelUsesRules(t *testing.T) {
	idx := newTestIndex()
	g := NewGenerator(idx, nil, nil, 0)

	gq, err := g.Generate(context.Background(), "how many users are there", "sales")

	require.NoError(t, err)
	assert.Equal(t, MethodRuleBased, gq.Method)
	assert.Equal(t, VerdictAccepted, gq.Verdict)
}

func TestGenerator_RuleRejectionCarriesReason(t *testing.T) {
	ghosts := types.TableDescriptor{
		Name:    "ghosts",
		Columns: []types.ColumnDescriptor{{Name: "id", Type: "INTEGER"}},
	}
	idx := &fakeIndex{tables: []types.TableDescriptor{ghosts}, snapshot: testSnapshot()}
	g := NewGenerator(idx, nil, NewValidator(100), 3)

	gq, err := g.Generate(context.Background(), "show ghosts", "sales")

	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, gq.Verdict)
	assert.Contains(t, gq.Reason, `unknown table "ghosts"`)
	assert.Equal(t, "SELECT * FROM ghosts LIMIT 100", gq.SQLText)
	assert.Zero(t, gq.Confidence)
}

func TestGenerator_AlternatesRetained(t *testing.T) {
	idx := newTestIndex()
	g := NewGenerator(idx, nil, NewValidator(100), 7)

	gq, err := g.Generate(context.Background(), "how many orders", "sales")

	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, gq.Tables)
	assert.Equal(t, [][]string{{"users"}}, gq.Alternates)
	assert.Equal(t, 7, idx.lastTopK)
}

func TestGenerator_IndexErrorPropagates(t *testing.T) {
	idx := &fakeIndex{findErr: apperrors.New(apperrors.ErrTypeConnection, "unreachable")}
	g := NewGenerator(idx, nil, NewValidator(100), 3)

	gq, err := g.Generate(context.Background(), "anything", "sales")

	require.Error(t, err)
	assert.Nil(t, gq)
}

func TestGenerator_MissingSnapshotErrors(t *testing.T) {
	idx := &fakeIndex{tables: testSnapshot().Tables}
	g := NewGenerator(idx, nil, NewValidator(100), 3)

	_, err := g.Generate(context.Background(), "anything", "sales")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema))
}

func TestStripMarkdownSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "sql fence",
			in:   "```sql\nSELECT 1\n```",
			want: "SELECT 1",
		},
		{
			name: "bare fence",
			in:   "```\nSELECT 1\n```",
			want: "SELECT 1",
		},
		{
			name: "whitespace collapsed",
			in:   "SELECT *\n  FROM t\n WHERE a = 1",
			want: "SELECT * FROM t WHERE a = 1",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMarkdownSQL(tt.in))
		})
	}
}

func TestReferencedTables(t *testing.T) {
	tables := salesTables()

	refs := referencedTables("SELECT * FROM orders JOIN users ON orders.user_id = users.id", tables)
	assert.Equal(t, []string{"orders", "users"}, refs)

	refs = referencedTables("SELECT * FROM reorders", tables)
	assert.Empty(t, refs)
}

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedsearch/fedsearch/internal/types"
)

func TestDescribeTable(t *testing.T) {
	td := types.TableDescriptor{
		Name: "orders",
		Columns: []types.ColumnDescriptor{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "total", Type: "NUMERIC", Nullable: true, Samples: []string{"19.99", "5.00"}},
		},
		RowEstimate: 12000,
	}

	got := DescribeTable(td)

	assert.Equal(t,
		"Table orders: columns id (integer, primary key), total (numeric, nullable); "+
			"approx. 12000 rows; sample values: total: 19.99, 5.00",
		got)
}

func TestDescribeTable_Minimal(t *testing.T) {
	td := types.TableDescriptor{
		Name:    "events",
		Columns: []types.ColumnDescriptor{{Name: "ts", Type: "TIMESTAMP"}},
	}

	got := DescribeTable(td)

	assert.Equal(t, "Table events: columns ts (timestamp)", got)
}

func TestDescribeTable_Deterministic(t *testing.T) {
	td := types.TableDescriptor{
		Name: "users",
		Columns: []types.ColumnDescriptor{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "email", Type: "VARCHAR"},
		},
	}

	assert.Equal(t, DescribeTable(td), DescribeTable(td))
}

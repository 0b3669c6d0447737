// Package testutil provides common constants, mocks and builders for tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// LongTestTimeout is an extended timeout for long-running operations
	LongTestTimeout = 2 * time.Minute

	// TestDimensions is the vector width used by test embedders
	TestDimensions = 8

	// TestBatchSize is the default embedding batch size for tests
	TestBatchSize = 5

	// TestRowCount is a common number of rows for test result sets
	TestRowCount = 10

	// TestTopK is a typical result bound for test searches
	TestTopK = 5
)

// Common test identifiers
const (
	// TestConnectionID is a default connection id
	TestConnectionID = "sales"

	// TestTableName is a default table name
	TestTableName = "orders"

	// TestCollection is a default vector collection name
	TestCollection = "documents"

	// TestQuery is a default natural-language query
	TestQuery = "show recent orders"

	// TestSQL is a default validated statement
	TestSQL = "SELECT id, name FROM orders LIMIT 100"
)

package connection

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantErr bool
	}{
		{
			name:    "missing id",
			desc:    Descriptor{Dialect: "duckdb"},
			wantErr: true,
		},
		{
			name:    "unsupported dialect",
			desc:    Descriptor{ID: "x", Dialect: "oracle"},
			wantErr: true,
		},
		{
			name:    "network dialect without host",
			desc:    Descriptor{ID: "x", Dialect: "postgres", Database: "app"},
			wantErr: true,
		},
		{
			name: "file dialect without path is in-memory",
			desc: Descriptor{ID: "x", Dialect: "duckdb"},
		},
		{
			name: "valid postgres",
			desc: Descriptor{ID: "x", Dialect: "postgresql", Host: "localhost", Database: "app"},
		},
		{
			name: "valid sql server alias",
			desc: Descriptor{ID: "x", Dialect: "sqlserver", Host: "corp-sql", Database: "sales"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDescriptor_TTL(t *testing.T) {
	fallback := 5 * time.Minute

	assert.Equal(t, fallback, Descriptor{}.TTL(fallback))
	assert.Equal(t, 90*time.Second, Descriptor{CacheTTL: "90s"}.TTL(fallback))
	assert.Equal(t, fallback, Descriptor{CacheTTL: "soon"}.TTL(fallback))
}

func TestDescriptor_EffectiveRowLimit(t *testing.T) {
	assert.Equal(t, 1000, Descriptor{}.EffectiveRowLimit(1000))
	assert.Equal(t, 50, Descriptor{RowLimit: 50}.EffectiveRowLimit(1000))
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join(t.TempDir(), "connections.json"))
	require.NoError(t, err)
	assert.Empty(t, reg.List(), "a missing connections file should yield an empty registry")
}

func TestLoadRegistry_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")

	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	require.NoError(t, reg.Add(Descriptor{ID: "warehouse", Dialect: "duckdb", Path: "/data/w.duckdb"}))
	require.NoError(t, reg.Add(Descriptor{ID: "app", Dialect: "sqlite", Path: "/data/app.db"}))
	require.NoError(t, reg.Save())

	reloaded, err := LoadRegistry(path)
	require.NoError(t, err)

	list := reloaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, "app", list[0].ID, "List should be sorted by id")
	assert.Equal(t, "warehouse", list[1].ID)

	desc, err := reloaded.Get("warehouse")
	require.NoError(t, err)
	assert.Equal(t, "/data/w.duckdb", desc.Path)
}

func TestLoadRegistry_DuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	payload := `{"connections":[
		{"id":"dup","dialect":"duckdb"},
		{"id":"dup","dialect":"sqlite"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0600))

	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate connection id")
}

func TestLoadRegistry_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0600))

	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestRegistry_Get_UnknownSuggestsListing(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join(t.TempDir(), "connections.json"))
	require.NoError(t, err)

	_, err = reg.Get("nope")
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrTypeConnection, appErr.Type)
	require.NotEmpty(t, appErr.Suggestions)
	assert.Contains(t, appErr.Suggestions[0], "connections list")
}

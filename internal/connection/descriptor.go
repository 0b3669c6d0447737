package connection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

// Descriptor identifies a target database. The engine references connections
// by ID only; descriptors are owned by the registry.
type Descriptor struct {
	ID       string `json:"id"`
	Dialect  string `json:"dialect"` // duckdb, postgres, mysql, sqlite, mssql
	Path     string `json:"path,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Schema   string `json:"schema,omitempty"`
	// IntegratedAuth selects OS-integrated authentication for SQL Server;
	// username/password are ignored when set.
	IntegratedAuth bool              `json:"integrated_auth,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
	// RowLimit overrides the registry default row bound for this connection.
	RowLimit int `json:"row_limit,omitempty"`
	// CacheTTL overrides the default cache TTL for this connection
	// (Go duration string).
	CacheTTL string `json:"cache_ttl,omitempty"`
}

// TTL returns the per-connection cache TTL, or fallback when unset or invalid
func (d Descriptor) TTL(fallback time.Duration) time.Duration {
	if d.CacheTTL == "" {
		return fallback
	}

	ttl, err := time.ParseDuration(d.CacheTTL)
	if err != nil {
		return fallback
	}

	return ttl
}

// EffectiveRowLimit returns the per-connection row bound, or fallback when unset
func (d Descriptor) EffectiveRowLimit(fallback int) int {
	if d.RowLimit > 0 {
		return d.RowLimit
	}

	return fallback
}

// Target renders the connection endpoint for display, credentials omitted.
// File-backed dialects with no path report an in-memory database.
func (d Descriptor) Target() string {
	if d.Path != "" {
		return d.Path
	}

	if d.Host == "" {
		return ":memory:"
	}

	host := d.Host
	if d.Port > 0 {
		host = fmt.Sprintf("%s:%d", d.Host, d.Port)
	}

	if d.Database != "" {
		return host + "/" + d.Database
	}

	return host
}

// Validate checks the descriptor for obvious misconfiguration
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return apperrors.New(apperrors.ErrTypeConfig, "connection id is required")
	}

	if _, err := dialectFor(d.Dialect); err != nil {
		return err
	}

	switch normalizeDialect(d.Dialect) {
	case dialectDuckDB, dialectSQLite:
		// file-based; empty path means in-memory
	default:
		if d.Host == "" {
			return apperrors.Newf(
				apperrors.ErrTypeConfig,
				"connection %q: host is required for dialect %s", d.ID, d.Dialect,
			)
		}
	}

	return nil
}

// registryFile is the on-disk shape of the connections file
type registryFile struct {
	Connections []Descriptor `json:"connections"`
}

// Registry holds the configured connection descriptors, loaded from a JSON
// connections file
type Registry struct {
	mu          sync.RWMutex
	path        string
	descriptors map[string]Descriptor
}

// LoadRegistry reads the connections file at path. A missing file yields an
// empty registry so first runs work before any connection is configured.
func LoadRegistry(path string) (*Registry, error) {
	reg := &Registry{
		path:        path,
		descriptors: make(map[string]Descriptor),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}

		return nil, apperrors.Wrapf(err, apperrors.ErrTypeConfig,
			"failed to read connections file %s", path)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrTypeConfig,
			"failed to parse connections file %s", path)
	}

	for _, desc := range file.Connections {
		if err := desc.Validate(); err != nil {
			return nil, err
		}

		if _, exists := reg.descriptors[desc.ID]; exists {
			return nil, apperrors.Newf(apperrors.ErrTypeConfig,
				"duplicate connection id %q in %s", desc.ID, path)
		}

		reg.descriptors[desc.ID] = desc
	}

	return reg, nil
}

// Get returns the descriptor for a connection id
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, apperrors.Newf(apperrors.ErrTypeConnection,
			"unknown connection %q", id).
			WithSuggestion("Run 'fedsearch connections list' to see configured connections")
	}

	return desc, nil
}

// List returns all descriptors sorted by id
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		out = append(out, desc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Add registers or replaces a descriptor
func (r *Registry) Add(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.descriptors[desc.ID] = desc

	return nil
}

// Save writes the registry back to its connections file
func (r *Registry) Save() error {
	r.mu.RLock()
	file := registryFile{Connections: r.listLocked()}
	r.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create connections directory: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}

	if err := os.WriteFile(r.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write connections file: %w", err)
	}

	return nil
}

func (r *Registry) listLocked() []Descriptor {
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		out = append(out, desc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

package testutil

import (
	"context"
	"sync"

	"github.com/fedsearch/fedsearch/internal/embedding"
	"github.com/fedsearch/fedsearch/internal/llm"
	"github.com/fedsearch/fedsearch/internal/types"
	"github.com/fedsearch/fedsearch/internal/vector"
)

// MockProvider stands in for the SQL provider: it serves canned row sets and
// table listings, injects errors per statement or connection, and counts
// calls so tests can assert how often the backend was actually reached.
type MockProvider struct {
	mu sync.RWMutex

	rowSets    map[string]*types.RowSet
	tables     map[string][]types.TableDescriptor
	errors     map[string]error
	callCounts map[string]int
}

// ProviderOption is a functional option for configuring MockProvider
type ProviderOption func(*MockProvider)

// WithRowSet serves rs for the given statement text
func WithRowSet(sqlText string, rs *types.RowSet) ProviderOption {
	return func(m *MockProvider) {
		m.rowSets[sqlText] = rs
	}
}

// WithTables serves the table listing for a connection
func WithTables(connectionID string, tables []types.TableDescriptor) ProviderOption {
	return func(m *MockProvider) {
		m.tables[connectionID] = tables
	}
}

// WithProviderError returns err for the given key. Keys are the statement
// text for Execute, the connection id for Introspect, and id+":ping" for
// Ping.
func WithProviderError(key string, err error) ProviderOption {
	return func(m *MockProvider) {
		m.errors[key] = err
	}
}

// NewMockProvider creates a mock SQL provider with the given options
func NewMockProvider(opts ...ProviderOption) *MockProvider {
	mock := &MockProvider{
		rowSets:    make(map[string]*types.RowSet),
		tables:     make(map[string][]types.TableDescriptor),
		errors:     make(map[string]error),
		callCounts: make(map[string]int),
	}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

// Execute returns the row set configured for sqlText. Unconfigured
// statements yield an empty result, not an error.
func (m *MockProvider) Execute(
	_ context.Context,
	_, sqlText string,
	_ []any,
	_ int,
) (*types.RowSet, error) {
	m.count("Execute")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, exists := m.errors[sqlText]; exists {
		return nil, err
	}

	if rs, exists := m.rowSets[sqlText]; exists {
		return rs, nil
	}

	return &types.RowSet{Columns: []string{}, Rows: [][]any{}}, nil
}

// Introspect returns the configured table listing for a connection
func (m *MockProvider) Introspect(
	_ context.Context,
	connectionID string,
) ([]types.TableDescriptor, error) {
	m.count("Introspect")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, exists := m.errors[connectionID]; exists {
		return nil, err
	}

	return m.tables[connectionID], nil
}

// Ping reports the injected health of a connection
func (m *MockProvider) Ping(_ context.Context, connectionID string) error {
	m.count("Ping")

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.errors[connectionID+":ping"]
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[method]
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCounts = make(map[string]int)
}

func (m *MockProvider) count(method string) {
	m.mu.Lock()
	m.callCounts[method]++
	m.mu.Unlock()
}

// MockEmbedder implements embedding.Provider with canned vectors. Texts
// without a configured vector embed to a constant unit vector so callers
// always get something of the right width.
type MockEmbedder struct {
	mu sync.RWMutex

	dims       int
	enabled    bool
	vectors    map[string][]float32
	err        error
	callCounts map[string]int
}

var _ embedding.Provider = (*MockEmbedder)(nil)

// EmbedderOption is a functional option for configuring MockEmbedder
type EmbedderOption func(*MockEmbedder)

// WithVector embeds text to the given vector
func WithVector(text string, vec []float32) EmbedderOption {
	return func(m *MockEmbedder) {
		m.vectors[text] = vec
	}
}

// WithDimensions sets the vector width
func WithDimensions(dims int) EmbedderOption {
	return func(m *MockEmbedder) {
		m.dims = dims
	}
}

// WithEmbedderError makes every Embed call fail with err
func WithEmbedderError(err error) EmbedderOption {
	return func(m *MockEmbedder) {
		m.err = err
	}
}

// WithEmbedderDisabled reports the provider as unable to serve
func WithEmbedderDisabled() EmbedderOption {
	return func(m *MockEmbedder) {
		m.enabled = false
	}
}

// NewMockEmbedder creates an enabled mock embedder with the given options
func NewMockEmbedder(opts ...EmbedderOption) *MockEmbedder {
	mock := &MockEmbedder{
		dims:       TestDimensions,
		enabled:    true,
		vectors:    make(map[string][]float32),
		callCounts: make(map[string]int),
	}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

// Embed returns the configured vector for text, or a constant unit vector
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.count("Embed")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	if vec, exists := m.vectors[text]; exists {
		return vec, nil
	}

	vec := make([]float32, m.dims)
	vec[0] = 1
	return vec, nil
}

// EmbedBatch embeds each text in input order
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.count("EmbedBatch")

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}

	return out, nil
}

// Dimensions returns the configured vector width
func (m *MockEmbedder) Dimensions() int { return m.dims }

// Enabled reports whether the mock serves requests
func (m *MockEmbedder) Enabled() bool { return m.enabled }

// Name identifies the mock in logs
func (m *MockEmbedder) Name() string { return "mock" }

// GetCallCount returns the number of times a method was called
func (m *MockEmbedder) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[method]
}

func (m *MockEmbedder) count(method string) {
	m.mu.Lock()
	m.callCounts[method]++
	m.mu.Unlock()
}

// MockVectorStore implements vector.Store with a fixed hit list.
type MockVectorStore struct {
	mu sync.RWMutex

	hits       []vector.Hit
	queryErr   error
	healthErr  error
	callCounts map[string]int
}

var _ vector.Store = (*MockVectorStore)(nil)

// VectorStoreOption is a functional option for configuring MockVectorStore
type VectorStoreOption func(*MockVectorStore)

// WithHits sets the hits every query returns, best first
func WithHits(hits ...vector.Hit) VectorStoreOption {
	return func(m *MockVectorStore) {
		m.hits = hits
	}
}

// WithQueryError makes every query fail with err
func WithQueryError(err error) VectorStoreOption {
	return func(m *MockVectorStore) {
		m.queryErr = err
	}
}

// WithUnhealthy makes Healthy report err
func WithUnhealthy(err error) VectorStoreOption {
	return func(m *MockVectorStore) {
		m.healthErr = err
	}
}

// NewMockVectorStore creates a healthy mock store with the given options
func NewMockVectorStore(opts ...VectorStoreOption) *MockVectorStore {
	mock := &MockVectorStore{callCounts: make(map[string]int)}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

// Query returns the configured hits, truncated to topK
func (m *MockVectorStore) Query(
	_ context.Context,
	_ []float32,
	topK int,
	_ map[string]any,
) ([]vector.Hit, error) {
	m.count("Query")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}

	hits := m.hits
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	return hits, nil
}

// Healthy reports the injected store health
func (m *MockVectorStore) Healthy(_ context.Context) error {
	m.count("Healthy")

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthErr
}

// GetCallCount returns the number of times a method was called
func (m *MockVectorStore) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[method]
}

func (m *MockVectorStore) count(method string) {
	m.mu.Lock()
	m.callCounts[method]++
	m.mu.Unlock()
}

// MockModel implements llm.Service with a scripted completion.
type MockModel struct {
	mu sync.RWMutex

	completion string
	available  bool
	err        error
	callCounts map[string]int
	prompts    []string
}

var _ llm.Service = (*MockModel)(nil)

// ModelOption is a functional option for configuring MockModel
type ModelOption func(*MockModel)

// WithCompletion sets the text every Complete call returns
func WithCompletion(text string) ModelOption {
	return func(m *MockModel) {
		m.completion = text
	}
}

// WithModelError makes every Complete call fail with err
func WithModelError(err error) ModelOption {
	return func(m *MockModel) {
		m.err = err
	}
}

// WithUnavailable reports the backend as unreachable
func WithUnavailable() ModelOption {
	return func(m *MockModel) {
		m.available = false
	}
}

// NewMockModel creates an available mock model with the given options
func NewMockModel(opts ...ModelOption) *MockModel {
	mock := &MockModel{
		available:  true,
		callCounts: make(map[string]int),
	}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

// Complete returns the scripted completion and records the prompt
func (m *MockModel) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.callCounts["Complete"]++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return "", m.err
	}

	return m.completion, nil
}

// Available reports the injected reachability
func (m *MockModel) Available(_ context.Context) bool {
	m.mu.Lock()
	m.callCounts["Available"]++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// Name identifies the mock in logs
func (m *MockModel) Name() string { return "mock" }

// Prompts returns every prompt passed to Complete, in call order
func (m *MockModel) Prompts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// GetCallCount returns the number of times a method was called
func (m *MockModel) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[method]
}

// ErrorInjector provides systematic error injection for testing
type ErrorInjector struct {
	mu     sync.Mutex
	errors map[string]error
	after  map[string]int
	counts map[string]int
}

// NewErrorInjector creates a new error injector
func NewErrorInjector() *ErrorInjector {
	return &ErrorInjector{
		errors: make(map[string]error),
		after:  make(map[string]int),
		counts: make(map[string]int),
	}
}

// InjectError configures an error to be returned for a specific key
func (e *ErrorInjector) InjectError(key string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors[key] = err
}

// InjectErrorAfterN configures an error to be returned after n successful calls
func (e *ErrorInjector) InjectErrorAfterN(key string, n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors[key] = err
	e.after[key] = n
}

// ShouldError checks if an error should be returned for the given key
func (e *ErrorInjector) ShouldError(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.counts[key]++

	err, exists := e.errors[key]
	if !exists {
		return nil
	}

	if n, gated := e.after[key]; gated && e.counts[key] <= n {
		return nil
	}

	return err
}

// GetCount returns the number of times a key was checked
func (e *ErrorInjector) GetCount(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[key]
}

// Reset clears all error configurations and counts
func (e *ErrorInjector) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = make(map[string]error)
	e.after = make(map[string]int)
	e.counts = make(map[string]int)
}

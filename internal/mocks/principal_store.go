package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/store"
)

// MockPrincipalStore implements store.PrincipalStore in memory. It is safe
// for concurrent use.
type MockPrincipalStore struct {
	// Function fields for customizable behavior
	FindByIdentifierFn   func(ctx context.Context, identifier string) (*domain.Principal, error)
	ExistsByIdentifierFn func(ctx context.Context, identifier string) (bool, error)
	CreateFn             func(ctx context.Context, p *domain.Principal) error
	ListFn               func(ctx context.Context) ([]*domain.Principal, error)

	mu         sync.Mutex
	principals map[string]*domain.Principal
	order      []string
	findCalls  int
}

var _ store.PrincipalStore = (*MockPrincipalStore)(nil)

// NewMockPrincipalStore creates an empty store.
func NewMockPrincipalStore() *MockPrincipalStore {
	return &MockPrincipalStore{principals: make(map[string]*domain.Principal)}
}

// Add seeds a principal, bypassing duplicate checks.
func (m *MockPrincipalStore) Add(p *domain.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[p.Identifier]; !ok {
		m.order = append(m.order, p.Identifier)
	}
	m.principals[p.Identifier] = p
}

// Count returns how many principals are stored.
func (m *MockPrincipalStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.principals)
}

// FindCalls returns how many times FindByIdentifier was called.
func (m *MockPrincipalStore) FindCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findCalls
}

// FindByIdentifier implements store.PrincipalFinder.
func (m *MockPrincipalStore) FindByIdentifier(ctx context.Context, identifier string) (*domain.Principal, error) {
	m.mu.Lock()
	m.findCalls++
	m.mu.Unlock()

	if m.FindByIdentifierFn != nil {
		return m.FindByIdentifierFn(ctx, identifier)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[domain.NormalizeIdentifier(identifier)]
	if !ok {
		return nil, store.ErrPrincipalNotFound
	}
	clone := *p
	return &clone, nil
}

// ExistsByIdentifier implements store.PrincipalFinder.
func (m *MockPrincipalStore) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	if m.ExistsByIdentifierFn != nil {
		return m.ExistsByIdentifierFn(ctx, identifier)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.principals[domain.NormalizeIdentifier(identifier)]
	return ok, nil
}

// Create implements store.PrincipalStore.
func (m *MockPrincipalStore) Create(ctx context.Context, p *domain.Principal) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[p.Identifier]; ok {
		return store.ErrIdentifierExists
	}
	m.principals[p.Identifier] = p
	m.order = append(m.order, p.Identifier)
	return nil
}

// List implements store.PrincipalStore in insertion order.
func (m *MockPrincipalStore) List(ctx context.Context) ([]*domain.Principal, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Principal, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.principals[id])
	}
	return out, nil
}

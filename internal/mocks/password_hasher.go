package mocks

import (
	"errors"
	"sync"
)

// ErrPasswordMismatch is returned by MockHasher.Compare on a mismatch.
var ErrPasswordMismatch = errors.New("password mismatch")

// MockHasher implements auth.Hasher with a reversible "hashed:" prefix so
// tests run without bcrypt's cost.
type MockHasher struct {
	HashFn    func(password string) (string, error)
	CompareFn func(hashedPassword, password string) error

	mu           sync.Mutex
	compareCalls int
}

// Hash implements auth.PasswordHasher.
func (m *MockHasher) Hash(password string) (string, error) {
	if m.HashFn != nil {
		return m.HashFn(password)
	}
	return "hashed:" + password, nil
}

// Compare implements auth.PasswordVerifier.
func (m *MockHasher) Compare(hashedPassword, password string) error {
	m.mu.Lock()
	m.compareCalls++
	m.mu.Unlock()

	if m.CompareFn != nil {
		return m.CompareFn(hashedPassword, password)
	}
	if hashedPassword == "hashed:"+password {
		return nil
	}
	return ErrPasswordMismatch
}

// CompareCalls returns how many times Compare was called.
func (m *MockHasher) CompareCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compareCalls
}

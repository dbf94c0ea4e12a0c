package api

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/caregate/caregate/pkg/token"
)

// ErrAccountNotFound is returned when no account matches the email.
var ErrAccountNotFound = errors.New("api: account not found")

// Account is a portal login identity. Portal profile data lives elsewhere;
// this is only what authentication needs.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         token.Role
	Verified     bool
}

// CredentialStore resolves login and refresh subjects.
type CredentialStore interface {
	// Lookup finds the account for an email, ErrAccountNotFound otherwise.
	Lookup(ctx context.Context, email string) (*Account, error)

	// Exists reports whether a subject id is still an active account. Used
	// by the token codec on refresh.
	Exists(subject string) bool
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("api: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MemoryCredentials is an in-process CredentialStore, used in tests and in
// deployments where accounts come from a static seed.
type MemoryCredentials struct {
	mu        sync.RWMutex
	byEmail   map[string]*Account
	bySubject map[string]*Account
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{
		byEmail:   make(map[string]*Account),
		bySubject: make(map[string]*Account),
	}
}

// Add registers an account, replacing any previous one with the same email.
func (m *MemoryCredentials) Add(acct Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := acct
	m.byEmail[strings.ToLower(a.Email)] = &a
	m.bySubject[a.ID] = &a
}

func (m *MemoryCredentials) Lookup(ctx context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryCredentials) Exists(subject string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bySubject[subject]
	return ok
}

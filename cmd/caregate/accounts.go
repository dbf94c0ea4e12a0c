package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/caregate/caregate/pkg/api"
	"github.com/caregate/caregate/pkg/token"
)

// accountEntry is one row of the accounts YAML file.
type accountEntry struct {
	ID           string `yaml:"id"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
	Verified     bool   `yaml:"verified"`
}

// loadCredentials reads portal accounts from a YAML file. An empty path
// yields an empty store: tokens still verify, but nobody can log in, which
// is the safe default for deployments that mint tokens elsewhere.
func loadCredentials(path string) (*api.MemoryCredentials, error) {
	creds := api.NewMemoryCredentials()
	if path == "" {
		return creds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var entries []accountEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	for i, e := range entries {
		if e.ID == "" || e.Email == "" || e.PasswordHash == "" {
			return nil, fmt.Errorf("account %d: id, email and password_hash are required", i)
		}
		role, err := token.ParseRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", e.ID, err)
		}
		creds.Add(api.Account{
			ID:           e.ID,
			Email:        e.Email,
			PasswordHash: e.PasswordHash,
			Role:         role,
			Verified:     e.Verified,
		})
	}
	return creds, nil
}

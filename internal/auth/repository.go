package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/shared"
)

// Repository looks up admin accounts.
type Repository interface {
	FindAdmin(ctx context.Context, username string) (Admin, error)
}

// MemoryRepository holds the demo admin directory.
type MemoryRepository struct {
	mu     sync.RWMutex
	admins map[string]Admin
}

// NewMemoryRepository hashes each seed password with bcrypt at cost and
// indexes the accounts by username. A zero cost uses bcrypt.DefaultCost.
func NewMemoryRepository(seeds []AdminSeed, cost int) (*MemoryRepository, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	repo := &MemoryRepository{admins: make(map[string]Admin, len(seeds))}
	for _, seed := range seeds {
		role, ok := access.ParseRole(seed.Role)
		if !ok || !role.IsAdmin() {
			return nil, fmt.Errorf("auth: admin %q has unknown role %q", seed.Username, seed.Role)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("auth: hash password for %q: %w", seed.Username, err)
		}
		name := seed.Name
		if name == "" {
			name = role.DisplayName()
		}
		repo.admins[strings.ToLower(seed.Username)] = Admin{
			Username:     seed.Username,
			Name:         name,
			Role:         role,
			PasswordHash: string(hash),
		}
	}
	return repo, nil
}

// FindAdmin returns the account for username.
func (r *MemoryRepository) FindAdmin(_ context.Context, username string) (Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	admin, ok := r.admins[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return Admin{}, shared.ErrInvalidCredentials
	}
	return admin, nil
}

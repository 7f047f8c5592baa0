package tokens

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Repository stores tokens and registrations.
type Repository interface {
	ListTokens(ctx context.Context) ([]Token, error)
	GetToken(ctx context.Context, number string) (Token, error)
	UpdateToken(ctx context.Context, number string, fn func(*Token) error) (Token, error)
	ListCancelled(ctx context.Context) ([]Token, error)
	AddCancelled(ctx context.Context, t Token) error
	InsertRegistration(ctx context.Context, reg Registration, aadhaarKeys ...string) error
	GetRegistration(ctx context.Context, reference string) (Registration, error)
	ListRegistrations(ctx context.Context) ([]Registration, error)
	HasRegistration(ctx context.Context, aadhaar string) (bool, error)
	ClearRegistrations(ctx context.Context) error
}

// MemoryRepository keeps everything in process memory.
type MemoryRepository struct {
	mu            sync.RWMutex
	tokens        map[string]Token
	order         []string
	cancelled     []Token
	registrations map[string]Registration
	regOrder      []string
	aadhaars      map[string]struct{}
}

// NewMemoryRepository returns a repository seeded with live tokens and
// previously cancelled ones.
func NewMemoryRepository(live, cancelled []Token) *MemoryRepository {
	repo := &MemoryRepository{
		tokens:        make(map[string]Token, len(live)),
		registrations: make(map[string]Registration),
		aadhaars:      make(map[string]struct{}),
	}
	for _, t := range live {
		key := strings.ToUpper(t.Number)
		if _, dup := repo.tokens[key]; !dup {
			repo.order = append(repo.order, key)
		}
		repo.tokens[key] = t
	}
	for _, t := range cancelled {
		t.Status = StatusCancelled
		repo.cancelled = append(repo.cancelled, t)
	}
	return repo
}

// ListTokens returns tokens in issue order.
func (r *MemoryRepository) ListTokens(_ context.Context) ([]Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Token, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.tokens[key])
	}
	return out, nil
}

// GetToken looks a token up by number, case-insensitively.
func (r *MemoryRepository) GetToken(_ context.Context, number string) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[strings.ToUpper(number)]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return t, nil
}

// UpdateToken applies fn under the write lock and stores the result when
// fn succeeds.
func (r *MemoryRepository) UpdateToken(_ context.Context, number string, fn func(*Token) error) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToUpper(number)
	t, ok := r.tokens[key]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	if err := fn(&t); err != nil {
		return Token{}, err
	}
	r.tokens[key] = t
	return t, nil
}

// ListCancelled returns cancelled tokens, most recent cancellation first.
func (r *MemoryRepository) ListCancelled(_ context.Context) ([]Token, error) {
	r.mu.RLock()
	out := append([]Token(nil), r.cancelled...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return cancelledKey(out[i]) > cancelledKey(out[j])
	})
	return out, nil
}

// AddCancelled appends t to the cancelled monitor.
func (r *MemoryRepository) AddCancelled(_ context.Context, t Token) error {
	r.mu.Lock()
	r.cancelled = append(r.cancelled, t)
	r.mu.Unlock()
	return nil
}

// InsertRegistration stores reg and remembers the Aadhaar keys for the
// day. A key already used fails the whole insert.
func (r *MemoryRepository) InsertRegistration(_ context.Context, reg Registration, aadhaarKeys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range aadhaarKeys {
		if _, used := r.aadhaars[key]; used {
			return ErrDuplicateRegistration
		}
	}
	r.registrations[reg.Reference] = reg
	r.regOrder = append(r.regOrder, reg.Reference)
	for _, key := range aadhaarKeys {
		r.aadhaars[key] = struct{}{}
	}
	return nil
}

// GetRegistration looks a registration up by reference.
func (r *MemoryRepository) GetRegistration(_ context.Context, reference string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registrations[reference]
	if !ok {
		return Registration{}, ErrRegistrationNotFound
	}
	return reg, nil
}

// ListRegistrations returns registrations in arrival order.
func (r *MemoryRepository) ListRegistrations(_ context.Context) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.regOrder))
	for _, ref := range r.regOrder {
		out = append(out, r.registrations[ref])
	}
	return out, nil
}

// HasRegistration reports whether the Aadhaar key was used today.
func (r *MemoryRepository) HasRegistration(_ context.Context, aadhaar string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.aadhaars[aadhaar]
	return ok, nil
}

// ClearRegistrations drops the day's registrations.
func (r *MemoryRepository) ClearRegistrations(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = make(map[string]Registration)
	r.regOrder = nil
	r.aadhaars = make(map[string]struct{})
	return nil
}

func cancelledKey(t Token) string {
	if t.Cancellation == nil {
		return ""
	}
	return t.Cancellation.Date + " " + t.Cancellation.Time
}

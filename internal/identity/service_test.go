package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/shared"
	_ "github.com/choreboard/choreboard/testing"
)

type stubRepo struct {
	mu         sync.Mutex
	byEmail    map[string]*identity.Principal
	byID       map[int64]*identity.Principal
	findCalls  int
	pinWrites  []string
	failLookup error
}

func newStubRepo(principals ...*identity.Principal) *stubRepo {
	r := &stubRepo{
		byEmail: make(map[string]*identity.Principal),
		byID:    make(map[int64]*identity.Principal),
	}
	for _, p := range principals {
		if p.Email != "" {
			r.byEmail[p.Email] = p
		}
		r.byID[p.ID] = p
	}
	return r
}

func (r *stubRepo) FindByEmail(ctx context.Context, email string) (*identity.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	if r.failLookup != nil {
		return nil, r.failLookup
	}
	p, ok := r.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *stubRepo) FindByID(ctx context.Context, id int64) (*identity.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	if r.failLookup != nil {
		return nil, r.failLookup
	}
	p, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *stubRepo) Create(ctx context.Context, p *identity.Principal) (*identity.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[p.Email]; ok && p.Email != "" {
		return nil, shared.ErrDuplicate
	}
	created := *p
	created.ID = int64(len(r.byID) + 1)
	r.byID[created.ID] = &created
	if created.Email != "" {
		r.byEmail[created.Email] = &created
	}
	return &created, nil
}

func (r *stubRepo) UpdatePINHash(ctx context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.PINHash = hash
	r.pinWrites = append(r.pinWrites, hash)
	return nil
}

func (r *stubRepo) ListKids(ctx context.Context) ([]identity.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kids []identity.Principal
	for _, p := range r.byID {
		if p.Role == identity.RoleKid {
			kids = append(kids, *p)
		}
	}
	return kids, nil
}

func (r *stubRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findCalls
}

func hash(t *testing.T, plaintext string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestVerifyPassword(t *testing.T) {
	repo := newStubRepo(&identity.Principal{
		ID:           1,
		Email:        "parent@example.com",
		Role:         identity.RoleParent,
		PasswordHash: hash(t, "correct-horse"),
		IsActive:     true,
	})
	svc := identity.NewService(repo, nil, time.Second)

	p, err := svc.VerifyPassword(context.Background(), "Parent@Example.COM", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)

	_, err = svc.VerifyPassword(context.Background(), "parent@example.com", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Unknown email must be indistinguishable from a wrong password.
	_, unknownErr := svc.VerifyPassword(context.Background(), "nobody@example.com", "anything")
	require.ErrorIs(t, unknownErr, shared.ErrInvalidCredentials)
	require.Equal(t, err.Error(), unknownErr.Error())
}

func TestVerifyPasswordInactive(t *testing.T) {
	repo := newStubRepo(&identity.Principal{
		ID:           1,
		Email:        "parent@example.com",
		Role:         identity.RoleParent,
		PasswordHash: hash(t, "correct-horse"),
		IsActive:     false,
	})
	svc := identity.NewService(repo, nil, time.Second)

	_, err := svc.VerifyPassword(context.Background(), "parent@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestVerifyPasswordStoreDown(t *testing.T) {
	repo := newStubRepo()
	repo.failLookup = context.DeadlineExceeded
	svc := identity.NewService(repo, nil, time.Second)

	_, err := svc.VerifyPassword(context.Background(), "parent@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrUnavailable)
	require.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestVerifyPINFormatRejectedBeforeStore(t *testing.T) {
	repo := newStubRepo()
	svc := identity.NewService(repo, nil, time.Second)

	for _, pin := range []string{"", "123", "12345", "12a4", "١٢٣٤", " 1234"} {
		_, err := svc.VerifyPIN(context.Background(), 1, pin)
		require.ErrorIs(t, err, shared.ErrValidation, "pin %q", pin)
	}
	require.Zero(t, repo.calls(), "malformed PINs must never reach the store")
}

func TestVerifyPINWrongRoleFailsClosed(t *testing.T) {
	// A parent with a (mistakenly) correct PIN hash must still be rejected.
	repo := newStubRepo(&identity.Principal{
		ID:       7,
		Role:     identity.RoleParent,
		PINHash:  hash(t, "1234"),
		IsActive: true,
	})
	svc := identity.NewService(repo, nil, time.Second)

	_, err := svc.VerifyPIN(context.Background(), 7, "1234")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestVerifyPIN(t *testing.T) {
	repo := newStubRepo(&identity.Principal{
		ID:       3,
		Name:     "Alex",
		Role:     identity.RoleKid,
		PINHash:  hash(t, "1234"),
		IsActive: true,
	})
	svc := identity.NewService(repo, nil, time.Second)

	p, err := svc.VerifyPIN(context.Background(), 3, "1234")
	require.NoError(t, err)
	require.Equal(t, int64(3), p.ID)

	_, err = svc.VerifyPIN(context.Background(), 3, "9999")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.VerifyPIN(context.Background(), 99, "1234")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSetPIN(t *testing.T) {
	repo := newStubRepo(
		&identity.Principal{ID: 3, Role: identity.RoleKid, IsActive: true},
		&identity.Principal{ID: 1, Role: identity.RoleParent, IsActive: true},
	)
	svc := identity.NewService(repo, nil, time.Second)

	require.ErrorIs(t, svc.SetPIN(context.Background(), 3, "12x4"), shared.ErrValidation)
	require.Zero(t, repo.calls())

	require.ErrorIs(t, svc.SetPIN(context.Background(), 1, "1234"), shared.ErrValidation)

	require.NoError(t, svc.SetPIN(context.Background(), 3, "4321"))
	p, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PINHash), []byte("4321")))
}

func TestSetPINConcurrentLastWriteWins(t *testing.T) {
	repo := newStubRepo(&identity.Principal{ID: 3, Role: identity.RoleKid, IsActive: true})
	svc := identity.NewService(repo, nil, time.Second)

	var wg sync.WaitGroup
	for _, pin := range []string{"1111", "2222"} {
		wg.Add(1)
		go func(pin string) {
			defer wg.Done()
			require.NoError(t, svc.SetPIN(context.Background(), 3, pin))
		}(pin)
	}
	wg.Wait()

	// The stored hash must match exactly one of the two PINs, never a hybrid.
	p, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	matchesFirst := bcrypt.CompareHashAndPassword([]byte(p.PINHash), []byte("1111")) == nil
	matchesSecond := bcrypt.CompareHashAndPassword([]byte(p.PINHash), []byte("2222")) == nil
	require.True(t, matchesFirst != matchesSecond, "exactly one write must win")
	require.Len(t, repo.pinWrites, 2)
}

func TestCreateParent(t *testing.T) {
	repo := newStubRepo()
	svc := identity.NewService(repo, nil, time.Second)

	_, err := svc.CreateParent(context.Background(), "Parent", "parent@example.com", "short")
	require.ErrorIs(t, err, shared.ErrValidation)

	p, err := svc.CreateParent(context.Background(), "Parent", "Parent@Example.com", "longenough")
	require.NoError(t, err)
	require.Equal(t, "parent@example.com", p.Email)
	require.Equal(t, identity.RoleParent, p.Role)

	_, err = svc.CreateParent(context.Background(), "Parent", "parent@example.com", "longenough")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

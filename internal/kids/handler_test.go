package kids_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/choreboard/choreboard/internal/app"
	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/kids"
	"github.com/choreboard/choreboard/internal/session"
	"github.com/choreboard/choreboard/internal/shared"
	_ "github.com/choreboard/choreboard/testing"
)

type stubRepo struct {
	principals map[int64]*identity.Principal
	nextID     int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*identity.Principal, error) {
	for _, p := range s.principals {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*identity.Principal, error) {
	if p, ok := s.principals[id]; ok {
		return p, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) Create(ctx context.Context, p *identity.Principal) (*identity.Principal, error) {
	created := *p
	created.ID = s.nextID
	s.nextID++
	s.principals[created.ID] = &created
	return &created, nil
}

func (s *stubRepo) UpdatePINHash(ctx context.Context, id int64, hash string) error {
	p, ok := s.principals[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.PINHash = hash
	return nil
}

func (s *stubRepo) ListKids(ctx context.Context) ([]identity.Principal, error) {
	var out []identity.Principal
	for _, p := range s.principals {
		if p.Role == identity.RoleKid {
			out = append(out, *p)
		}
	}
	return out, nil
}

func newFixture(t *testing.T) (chi.Router, *stubRepo) {
	t.Helper()
	repo := &stubRepo{
		principals: map[int64]*identity.Principal{
			3: {ID: 3, Name: "Alex", Role: identity.RoleKid, IsActive: true},
		},
		nextID: 10,
	}
	engine, err := app.NewPolicyEngine(nil)
	if err != nil {
		t.Fatalf("policy engine: %v", err)
	}
	handler := kids.NewHandler(nil, identity.NewService(repo, nil, time.Second), engine)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, repo
}

func do(t *testing.T, r chi.Router, method, path, body string, claims *session.Claims) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if claims != nil {
		sess := &session.Session{ID: "t", Claims: *claims}
		req = req.WithContext(session.ContextWith(req.Context(), sess))
	}
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func TestListKidsParentOnly(t *testing.T) {
	r, _ := newFixture(t)

	parent := &session.Claims{PrincipalID: 1, Role: identity.RoleParent}
	res := do(t, r, http.MethodGet, "/kids/", "", parent)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var listed []map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 || listed[0]["name"] != "Alex" {
		t.Fatalf("unexpected kid list: %v", listed)
	}

	kid := &session.Claims{PrincipalID: 3, Role: identity.RoleKid}
	if res := do(t, r, http.MethodGet, "/kids/", "", kid); res.Code != http.StatusForbidden {
		t.Fatalf("kid listing kids: expected 403, got %d", res.Code)
	}
	if res := do(t, r, http.MethodGet, "/kids/", "", nil); res.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", res.Code)
	}
}

func TestCreateKid(t *testing.T) {
	r, repo := newFixture(t)

	parent := &session.Claims{PrincipalID: 1, Role: identity.RoleParent}
	res := do(t, r, http.MethodPost, "/kids/", `{"name":"Sam"}`, parent)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if _, err := repo.FindByID(context.Background(), 10); err != nil {
		t.Fatalf("kid not persisted: %v", err)
	}

	kid := &session.Claims{PrincipalID: 3, Role: identity.RoleKid}
	if res := do(t, r, http.MethodPost, "/kids/", `{"name":"Rogue"}`, kid); res.Code != http.StatusForbidden {
		t.Fatalf("kid creating kid: expected 403, got %d", res.Code)
	}
}

func TestSetPIN(t *testing.T) {
	r, repo := newFixture(t)
	parent := &session.Claims{PrincipalID: 1, Role: identity.RoleParent}

	res := do(t, r, http.MethodPut, "/kids/3/pin", `{"pin":"1234"}`, parent)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", res.Code, res.Body.String())
	}
	p, err := repo.FindByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("find kid: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PINHash), []byte("1234")) != nil {
		t.Fatal("stored hash does not match the new PIN")
	}

	if res := do(t, r, http.MethodPut, "/kids/3/pin", `{"pin":"12"}`, parent); res.Code != http.StatusBadRequest {
		t.Fatalf("short pin: expected 400, got %d", res.Code)
	}

	// A kid cannot rotate PINs, not even their own.
	kid := &session.Claims{PrincipalID: 3, Role: identity.RoleKid}
	if res := do(t, r, http.MethodPut, "/kids/3/pin", `{"pin":"4321"}`, kid); res.Code != http.StatusForbidden {
		t.Fatalf("kid setting pin: expected 403, got %d", res.Code)
	}
}

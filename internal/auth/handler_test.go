package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/choreboard/choreboard/internal/auth"
	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/session"
	"github.com/choreboard/choreboard/internal/shared"
	_ "github.com/choreboard/choreboard/testing"
)

type stubRepo struct {
	principals map[int64]*identity.Principal
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
	for _, existing := range s.principals {
		if existing.Email == p.Email && p.Email != "" {
			return nil, shared.ErrDuplicate
		}
	}
	created := *p
	created.ID = int64(len(s.principals) + 1)
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
	var kids []identity.Principal
	for _, p := range s.principals {
		if p.Role == identity.RoleKid {
			kids = append(kids, *p)
		}
	}
	return kids, nil
}

type fixture struct {
	router   chi.Router
	manager  *session.Manager
	mr       *miniredis.Miniredis
	attempts []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mustHash := func(plaintext string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		return string(h)
	}
	repo := &stubRepo{principals: map[int64]*identity.Principal{
		1: {ID: 1, Name: "Dana", Email: "parent@example.com", Role: identity.RoleParent, PasswordHash: mustHash("parentpass"), IsActive: true},
		3: {ID: 3, Name: "Alex", Role: identity.RoleKid, PINHash: mustHash("1234"), IsActive: true},
	}}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	manager := session.NewManager(client, "test_session", time.Hour, false, nil)
	issuer := session.NewIssuer(manager, "proof-secret", 30*time.Second, nil, nil)
	ident := identity.NewService(repo, nil, time.Second)
	handler := auth.NewHandler(nil, ident, issuer, manager)
	f := &fixture{manager: manager, mr: mr}
	handler.LoginObserver = func(method, outcome string) {
		f.attempts = append(f.attempts, method+":"+outcome)
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if sess, err := manager.Resolve(req.Context(), req); err == nil && sess != nil {
				req = req.WithContext(session.ContextWith(req.Context(), sess))
			}
			next.ServeHTTP(w, req)
		})
	})
	handler.MountRoutes(r, nil)
	f.router = r
	return f
}

func (f *fixture) post(t *testing.T, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range res.Result().Cookies() {
		if c.Name == "test_session" && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestPasswordLogin(t *testing.T) {
	f := newFixture(t)

	res := f.post(t, "/login", `{"email":"parent@example.com","password":"parentpass"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body struct {
		SessionEstablished bool `json:"sessionEstablished"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil || !body.SessionEstablished {
		t.Fatalf("expected sessionEstablished true, got %s", res.Body.String())
	}

	cookie := sessionCookie(t, res)
	sess, err := f.manager.ResolveToken(context.Background(), cookie.Value)
	if err != nil || sess == nil {
		t.Fatalf("cookie did not resolve to a session: %v", err)
	}
	if sess.Claims.Role != identity.RoleParent {
		t.Fatalf("expected parent role in claims, got %q", sess.Claims.Role)
	}
	if len(f.attempts) != 1 || f.attempts[0] != "password:success" {
		t.Fatalf("unexpected login observations: %v", f.attempts)
	}
}

func TestPasswordLoginFailuresAreUniform(t *testing.T) {
	f := newFixture(t)

	wrongPass := f.post(t, "/login", `{"email":"parent@example.com","password":"nope"}`)
	unknownEmail := f.post(t, "/login", `{"email":"ghost@example.com","password":"nope"}`)

	for _, res := range []*httptest.ResponseRecorder{wrongPass, unknownEmail} {
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d: %s", res.Code, res.Body.String())
		}
	}
	// Wrong password and unknown account must be byte-identical responses.
	if wrongPass.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("credential failures distinguishable:\n%s\n%s", wrongPass.Body.String(), unknownEmail.Body.String())
	}
	if len(f.attempts) != 2 || f.attempts[0] != "password:invalid" || f.attempts[1] != "password:invalid" {
		t.Fatalf("unexpected login observations: %v", f.attempts)
	}
}

func TestPINLogin(t *testing.T) {
	f := newFixture(t)

	res := f.post(t, "/login/pin", `{"principalId":3,"pin":"1234"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	cookie := sessionCookie(t, res)
	sess, err := f.manager.ResolveToken(context.Background(), cookie.Value)
	if err != nil || sess == nil {
		t.Fatalf("cookie did not resolve to a session: %v", err)
	}
	if sess.Claims.PrincipalID != 3 || sess.Claims.Role != identity.RoleKid {
		t.Fatalf("unexpected claims %+v", sess.Claims)
	}
}

func TestPINLoginWrongPINIsCredentialFailure(t *testing.T) {
	f := newFixture(t)

	// Wrong PIN is a 401 credential failure, not a 500 establishment failure.
	res := f.post(t, "/login/pin", `{"principalId":3,"pin":"9999"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.Code, res.Body.String())
	}
	if strings.Contains(res.Body.String(), "establish") {
		t.Fatalf("wrong PIN must not surface as establishment failure: %s", res.Body.String())
	}

	unknown := f.post(t, "/login/pin", `{"principalId":77,"pin":"9999"}`)
	if unknown.Code != http.StatusUnauthorized || unknown.Body.String() != res.Body.String() {
		t.Fatalf("unknown principal must be indistinguishable from wrong PIN")
	}
}

func TestPINLoginFormatRejected(t *testing.T) {
	f := newFixture(t)

	for _, pin := range []string{"123", "12345", "12a4"} {
		res := f.post(t, "/login/pin", `{"principalId":3,"pin":"`+pin+`"}`)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("pin %q: expected 400, got %d", pin, res.Code)
		}
	}
}

func TestPINLoginParentRejected(t *testing.T) {
	f := newFixture(t)

	// Parents have no PIN path, even with a well-formed PIN.
	res := f.post(t, "/login/pin", `{"principalId":1,"pin":"1234"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.Code, res.Body.String())
	}
}

func TestPINLoginEstablishmentFailureIs500(t *testing.T) {
	f := newFixture(t)

	// Credential verifies, but the session store is down: the client must be
	// told establishment failed so it retries with the same credentials.
	f.mr.SetError("store down")
	res := f.post(t, "/login/pin", `{"principalId":3,"pin":"1234"}`)
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), "Session Establishment Failed") {
		t.Fatalf("expected establishment failure body, got %s", res.Body.String())
	}
}

func TestSignupAndDuplicate(t *testing.T) {
	f := newFixture(t)

	res := f.post(t, "/signup", `{"name":"Sam","email":"sam@example.com","password":"longenough"}`)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	sessionCookie(t, res)

	dup := f.post(t, "/signup", `{"name":"Sam","email":"sam@example.com","password":"longenough"}`)
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", dup.Code, dup.Body.String())
	}

	short := f.post(t, "/signup", `{"name":"Sam","email":"sam2@example.com","password":"short"}`)
	if short.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", short.Code)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)

	login := f.post(t, "/login", `{"email":"parent@example.com","password":"parentpass"}`)
	cookie := sessionCookie(t, login)

	res := f.post(t, "/logout", "", cookie)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}

	sess, err := f.manager.ResolveToken(context.Background(), cookie.Value)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sess != nil {
		t.Fatal("session must be revoked after logout")
	}

	var cleared bool
	for _, c := range res.Result().Cookies() {
		if c.Name == "test_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("logout must clear the session cookie")
	}
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	login := f.post(t, "/login", `{"email":"parent@example.com","password":"parentpass"}`)
	cookie := sessionCookie(t, login)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["email"] != "parent@example.com" || body["role"] != "parent" {
		t.Fatalf("unexpected identity payload: %v", body)
	}

	anon := httptest.NewRecorder()
	f.router.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/me", nil))
	if anon.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous /me, got %d", anon.Code)
	}
}

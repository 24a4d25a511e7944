package identity

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/infoundr/infoundr/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMiddlewareAssignsAnonymousIdentity(t *testing.T) {
	repo := newTestRepo(t)

	var gotUserID, gotThreadID string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotThreadID = ThreadIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !isValidAnonID(gotUserID) {
		t.Fatalf("user id = %q, want anon_<hex>", gotUserID)
	}
	if gotThreadID != DefaultThreadIDValue {
		t.Errorf("thread id = %q, want default", gotThreadID)
	}

	cookies := rec.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == AnonCookieName && c.Value == gotUserID {
			found = true
			if !c.HttpOnly {
				t.Error("anon cookie is not HttpOnly")
			}
		}
	}
	if !found {
		t.Error("anon cookie not set")
	}

	user, err := repo.GetUser(req.Context(), gotUserID)
	if err != nil || user == nil {
		t.Fatalf("user not persisted: %v", err)
	}
}

func TestMiddlewareReusesCookieIdentity(t *testing.T) {
	repo := newTestRepo(t)

	var ids []string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, UserIDFromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req2.AddCookie(c)
	}
	h.ServeHTTP(httptest.NewRecorder(), req2)

	if len(ids) != 2 || ids[0] != ids[1] {
		t.Errorf("ids = %v, want the same identity reused", ids)
	}
}

func TestThreadIDFromHeader(t *testing.T) {
	repo := newTestRepo(t)

	var gotThreadID string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotThreadID = ThreadIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ThreadHeaderName, "tab-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotThreadID != "tab-42" {
		t.Errorf("thread id = %q", gotThreadID)
	}

	// Garbage thread IDs fall back to the default.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ThreadHeaderName, "../../etc/passwd !!")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotThreadID != DefaultThreadIDValue {
		t.Errorf("thread id = %q, want default for invalid input", gotThreadID)
	}
}

package mid

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), tag("outer"), tag("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "inner", "handler"}
	for i, n := range want {
		if order[i] != n {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRecoverCatchesPanic(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recover(slog.Default()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestAuthRejectsUnknownKey(t *testing.T) {
	denied := false
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}), Auth(map[string]Role{"secret": RoleAdmin}, func(w http.ResponseWriter, _ *http.Request) {
		denied = true
		w.WriteHeader(http.StatusForbidden)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(KeyHeader, "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !denied || rec.Code != http.StatusForbidden {
		t.Fatalf("denied=%v status=%d, want denial with 403", denied, rec.Code)
	}
}

func TestAuthStoresRole(t *testing.T) {
	var got Role
	h := Chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = RoleFrom(r.Context())
	}), Auth(map[string]Role{"secret": RoleEditor}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(KeyHeader, "secret")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != RoleEditor {
		t.Fatalf("role = %q, want editor", got)
	}
}

func TestRoleAllows(t *testing.T) {
	if !RoleAdmin.Allows(RoleEditor) {
		t.Fatal("admin should imply editor")
	}
	if RoleEditor.Allows(RoleAdmin) {
		t.Fatal("editor should not imply admin")
	}
}

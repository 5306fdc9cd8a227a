package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_Literals(t *testing.T) {
	r := NewResolver(EnvSource{}, FileSource{})
	for _, in := range []string{"", "sk-plain", "mongodb://localhost:27017", "postgres://u:p@h/db"} {
		got, err := r.Resolve(context.Background(), in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", in, err)
		}
		if got != in {
			t.Fatalf("Resolve(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestResolve_Env(t *testing.T) {
	t.Setenv("BUJO_TEST_KEY", "from-env")
	r := NewResolver(EnvSource{})

	got, err := r.Resolve(context.Background(), "env:BUJO_TEST_KEY")
	if err != nil {
		t.Fatal(err)
	}
	if got != "from-env" {
		t.Fatalf("got %q", got)
	}

	_, err = r.Resolve(context.Background(), "env:BUJO_TEST_MISSING_XYZ")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_FileTrimsAndCaches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pw")
	if err := os.WriteFile(path, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(FileSource{})
	ref := "file:" + path

	got, err := r.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hunter2" {
		t.Fatalf("got %q", got)
	}

	// Cached value survives the file going away.
	os.Remove(path)
	got, err = r.Resolve(context.Background(), ref)
	if err != nil || got != "hunter2" {
		t.Fatalf("cached resolve = %q, %v", got, err)
	}
}

func TestResolve_EmptyKey(t *testing.T) {
	r := NewResolver(EnvSource{})
	if _, err := r.Resolve(context.Background(), "env:"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestResolveAll(t *testing.T) {
	t.Setenv("BUJO_TEST_A", "a")
	r := NewResolver(EnvSource{})
	x, y := "env:BUJO_TEST_A", "literal"
	if err := r.ResolveAll(context.Background(), &x, &y); err != nil {
		t.Fatal(err)
	}
	if x != "a" || y != "literal" {
		t.Fatalf("got %q %q", x, y)
	}

	z := "env:BUJO_TEST_MISSING_XYZ"
	if err := r.ResolveAll(context.Background(), &z); err == nil {
		t.Fatal("expected error")
	}
	if z != "env:BUJO_TEST_MISSING_XYZ" {
		t.Fatalf("failed resolve must leave value untouched, got %q", z)
	}
}

func TestVaultSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/v1/secret/data/bujo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"data":{"data":{"llm_api_key":"sk-vault","port":6334}}}`))
	}))
	defer srv.Close()

	v, err := NewVaultSource(VaultConfig{Address: srv.URL, Token: "root"})
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(v)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "vault:bujo#llm_api_key")
	if err != nil || got != "sk-vault" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = r.Resolve(ctx, "vault:bujo#port")
	if err != nil || got != "6334" {
		t.Fatalf("non-string field: got %q, %v", got, err)
	}
	if _, err := r.Resolve(ctx, "vault:bujo#missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing field: %v", err)
	}
	if _, err := r.Resolve(ctx, "vault:other#x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing path: %v", err)
	}
	if _, err := r.Resolve(ctx, "vault:nofield"); err == nil {
		t.Fatal("expected error for reference without field")
	}
}

func TestNewVaultSource_Validation(t *testing.T) {
	if _, err := NewVaultSource(VaultConfig{Token: "t"}); err == nil {
		t.Fatal("expected error without address")
	}
	if _, err := NewVaultSource(VaultConfig{Address: "http://x"}); err == nil {
		t.Fatal("expected error without token")
	}
}

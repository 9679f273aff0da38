package registry_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/icode/registry"
)

func TestFetchPackument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/left-pad" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(registry.Packument{
			Name:     "left-pad",
			DistTags: map[string]string{"latest": "1.3.0"},
			Versions: map[string]registry.VersionMeta{
				"1.3.0": {Name: "left-pad", Version: "1.3.0"},
			},
		})
	}))
	defer srv.Close()

	c := registry.New(slog.Default(), srv.URL)
	p, err := c.FetchPackument(context.Background(), "left-pad")
	if err != nil {
		t.Fatalf("FetchPackument: %v", err)
	}
	if p.DistTags["latest"] != "1.3.0" {
		t.Fatalf("DistTags[latest] = %q, want 1.3.0", p.DistTags["latest"])
	}
}

func TestFetchPackumentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := registry.New(slog.Default(), srv.URL)
	_, err := c.FetchPackument(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatalf("FetchPackument: want error, got nil")
	}
}

func TestScopedPackagePath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(registry.Packument{Name: "@types/node"})
	}))
	defer srv.Close()

	c := registry.New(slog.Default(), srv.URL)
	if _, err := c.FetchPackument(context.Background(), "@types/node"); err != nil {
		t.Fatalf("FetchPackument: %v", err)
	}
	if want := "/@types%2Fnode"; gotPath != want {
		t.Fatalf("request path = %q, want %q", gotPath, want)
	}
}

func TestDownloadTarball(t *testing.T) {
	want := []byte("tarball-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(want)
	}))
	defer srv.Close()

	c := registry.New(slog.Default(), "")
	got, err := c.DownloadTarball(context.Background(), srv.URL+"/pkg.tgz")
	if err != nil {
		t.Fatalf("DownloadTarball: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("DownloadTarball = %q, want %q", got, want)
	}
}

func TestVerifyIntegrityAndShasum(t *testing.T) {
	data := []byte("hello world")
	// sha512 of "hello world" base64-encoded.
	integrity := "sha512-MJ7MSJwS1utMxA9QyQLytNDtd+5RGnx6m808qG1M2G+YndNbxf9JlnDaNCVbRbDP2DDoH2Bdz33FVC6TrpzXbw=="
	ok, err := registry.Verify(data, integrity)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("Verify = false, want true")
	}

	if !registry.VerifyShasum(data, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed") {
		t.Fatalf("VerifyShasum = false, want true")
	}
}

package tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSpritesRuntimeRun(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	var gotCmd []string
	var gotStdinFlag string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCmd = r.URL.Query()["cmd"]
		gotStdinFlag = r.URL.Query().Get("stdin")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, "remote output")
	}))
	defer srv.Close()

	rt := NewSpritesRuntime("tok123", "mybox")
	rt.BaseURL = srv.URL

	out, err := rt.Run(context.Background(), []string{"bash", "-c", "echo hi"}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if out != "remote output" {
		t.Fatalf("got %q", out)
	}
	if gotPath != "/v1/sprites/mybox/exec" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if len(gotCmd) != 3 || gotCmd[2] != "echo hi" {
		t.Fatalf("cmd = %v", gotCmd)
	}
	if gotStdinFlag != "" || gotBody != "" {
		t.Fatalf("no stdin expected: flag=%q body=%q", gotStdinFlag, gotBody)
	}
}

func TestSpritesRuntimeStdin(t *testing.T) {
	var gotBody, gotStdinFlag string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStdinFlag = r.URL.Query().Get("stdin")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	rt := NewSpritesRuntime("tok", "box")
	rt.BaseURL = srv.URL

	if _, err := rt.Run(context.Background(), []string{"tee", "/f"}, "file content", 0); err != nil {
		t.Fatal(err)
	}
	if gotStdinFlag != "true" || gotBody != "file content" {
		t.Fatalf("stdin not forwarded: flag=%q body=%q", gotStdinFlag, gotBody)
	}
}

func TestSpritesRuntimeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "vm not running", http.StatusConflict)
	}))
	defer srv.Close()

	rt := NewSpritesRuntime("tok", "box")
	rt.BaseURL = srv.URL

	_, err := rt.Run(context.Background(), []string{"ls"}, "", 0)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(err.Error(), "status 409") || !strings.Contains(err.Error(), "vm not running") {
		t.Fatalf("got %v", err)
	}
}

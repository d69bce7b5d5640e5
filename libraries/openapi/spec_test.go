package openapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testSpecYAML = `openapi: 3.0.3
info:
  title: Test API
  version: 0.0.0
paths:
  /v1/things:
    get:
      summary: List things
      responses:
        '200':
          description: OK
    post:
      summary: Create thing
      responses:
        '200':
          description: OK
  /health:
    get:
      summary: Health
      responses:
        '200':
          description: OK
`

func TestLoad(t *testing.T) {
	spec, err := Load([]byte(testSpecYAML), "1.2.3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec.Version() != "1.2.3" {
		t.Errorf("version = %q", spec.Version())
	}
	if !strings.Contains(string(spec.JSON()), `"1.2.3"`) {
		t.Error("rendered JSON missing version override")
	}

	routes := spec.Routes()
	want := []string{"GET /v1/things", "POST /v1/things", "GET /health"}
	if len(routes) != len(want) {
		t.Fatalf("routes = %v", routes)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("routes[%d] = %q, want %q", i, routes[i], want[i])
		}
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load([]byte("not: [valid"), ""); err == nil {
		t.Error("expected error")
	}
}

func TestValidateMux(t *testing.T) {
	spec, err := Load([]byte(testSpecYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	ok := func(w http.ResponseWriter, r *http.Request) {}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/things", ok)
	mux.HandleFunc("GET /health", ok)

	err = spec.ValidateMux(mux)
	if err == nil || !strings.Contains(err.Error(), "POST /v1/things") {
		t.Fatalf("expected missing POST, got %v", err)
	}

	mux.HandleFunc("POST /v1/things", ok)
	if err := spec.ValidateMux(mux); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandler(t *testing.T) {
	spec, err := Load([]byte(testSpecYAML), "")
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	spec.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/openapi.json", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type %q", ct)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "/v1/things") {
		t.Error("JSON body missing path")
	}

	rec = httptest.NewRecorder()
	spec.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/openapi.json?format=yaml", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-yaml" {
		t.Errorf("yaml content type %q", ct)
	}
}

package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestSocketListenTCP(t *testing.T) {
	l, err := SocketListen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("SocketListen: %v", err)
	}
	defer l.Close()
	if l.Addr().Network() != "tcp" {
		t.Errorf("network = %s", l.Addr().Network())
	}
}

func TestSocketListenUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.sock")
	l, err := SocketListen(path)
	if err != nil {
		t.Fatalf("SocketListen: %v", err)
	}
	defer l.Close()
	if l.Addr().Network() != "unix" {
		t.Errorf("network = %s", l.Addr().Network())
	}
}

func TestSocketListenError(t *testing.T) {
	if _, err := SocketListen("256.0.0.1:99999"); err == nil {
		t.Error("expected error")
	}
}

func TestEnabled(t *testing.T) {
	if Enabled("") || Enabled("none") || !Enabled(":8080") {
		t.Error("unexpected Enabled result")
	}
}

func TestGetRequestParams(t *testing.T) {
	req := httptest.NewRequest("POST", "/x?account=alice&v=1&v=2", strings.NewReader(`{"account":"bob","abi_sequence":3}`))
	params, err := GetRequestParams(req)
	if err != nil {
		t.Fatal(err)
	}
	if params["account"] != "alice" {
		t.Errorf("query should win: %v", params["account"])
	}
	if len(params["v"].([]interface{})) != 2 {
		t.Errorf("v = %v", params["v"])
	}
	if params["abi_sequence"] == nil {
		t.Error("body field missing")
	}

	bad := httptest.NewRequest("POST", "/x", strings.NewReader(`{`))
	if _, err := GetRequestParams(bad); err == nil {
		t.Error("expected JSON error")
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "nope")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"nope"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("content type = %s", rec.Header().Get("Content-Type"))
	}
}

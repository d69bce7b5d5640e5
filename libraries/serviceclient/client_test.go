package serviceclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/greymass/abicached/libraries/chain"
	"github.com/greymass/abicached/libraries/server"
)

const testABI = `{"version":"eosio::abi/1.1","structs":[{"name":"hi","base":"","fields":[{"name":"user","type":"name"}]}],"actions":[{"name":"hi","type":"hi","ricardian_contract":""}]}`

func testHandler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/abi_cache/get_abi", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("account") != "hello" || r.URL.Query().Get("abi_sequence") != "2" {
			server.WriteError(w, http.StatusNotFound, "no ABI")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"account":"hello","abi_sequence":2,"abi":` + testABI + `}`))
	})
	mux.HandleFunc("GET /v1/abi_cache/global_sequence_height", func(w http.ResponseWriter, r *http.Request) {
		server.WriteJSON(w, http.StatusOK, map[string]uint64{"global_sequence_height": 18446744073709551615})
	})
	mux.HandleFunc("POST /v1/abi_cache/decode_action", func(w http.ResponseWriter, r *http.Request) {
		params, err := server.GetRequestParams(r)
		if err != nil || params["action"] != "hi" || params["data"] != "0000000000ea3055" {
			t.Errorf("decode request = %v, %v", params, err)
		}
		server.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]string{"user": "eosio"}})
	})
	return mux
}

func TestNewClient(t *testing.T) {
	if c := New("https://example.com", time.Second); c.baseURL != "https://example.com" {
		t.Errorf("baseURL = %s", c.baseURL)
	}
	if c := New("unix:///tmp/test.sock", time.Second); c.baseURL != "http://localhost" {
		t.Errorf("unix baseURL = %s", c.baseURL)
	}
}

func TestClientGetABI(t *testing.T) {
	srv := httptest.NewServer(testHandler(t))
	defer srv.Close()
	c := New(srv.URL, 5*time.Second)
	ctx := context.Background()

	abi, err := c.GetABI(ctx, "hello", 2)
	if err != nil {
		t.Fatalf("GetABI: %v", err)
	}
	if typ, ok := abi.ActionType(chain.N("hi")); !ok || typ != "hi" {
		t.Errorf("action type = %q, %v", typ, ok)
	}

	_, err = c.GetABI(ctx, "hello", 3)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetABI unknown version = %v", err)
	}
	var se *ServiceError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound || len(se.Body) == 0 {
		t.Errorf("service error = %+v", se)
	}
}

func TestClientHeightAndDecode(t *testing.T) {
	srv := httptest.NewServer(testHandler(t))
	defer srv.Close()
	c := New(srv.URL, 5*time.Second)
	ctx := context.Background()

	h, err := c.GlobalHeight(ctx)
	if err != nil || h != 18446744073709551615 {
		t.Errorf("GlobalHeight = %d, %v", h, err)
	}

	data, err := c.DecodeAction(ctx, DecodeRequest{Account: "hello", AbiSequence: 2, Action: "hi", Data: "0000000000ea3055"})
	if err != nil {
		t.Fatalf("DecodeAction: %v", err)
	}
	if data["user"] != "eosio" {
		t.Errorf("data = %v", data)
	}
}

func TestClientUnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.sock")
	l, err := server.SocketListen(path)
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: testHandler(t)}
	go srv.Serve(l)
	defer srv.Close()

	c := New("unix://"+path, 5*time.Second)
	if _, err := c.GlobalHeight(context.Background()); err != nil {
		t.Errorf("GlobalHeight over unix socket: %v", err)
	}
}

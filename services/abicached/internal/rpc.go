package internal

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/greymass/abicached/libraries/abicache"
	"github.com/greymass/abicached/libraries/chain"
	"github.com/greymass/abicached/libraries/encoding"
	"github.com/greymass/abicached/libraries/logger"
	"github.com/greymass/abicached/libraries/openapi"
	"github.com/greymass/abicached/libraries/querytrace"
	"github.com/greymass/abicached/libraries/server"
	"github.com/greymass/abicached/services/abicached/internal/metrics"
)

type RPCServer struct {
	engine *Engine
	spec   *openapi.Spec
	mux    *http.ServeMux
}

func NewRPCServer(engine *Engine, spec *openapi.Spec) *RPCServer {
	s := &RPCServer{engine: engine, spec: spec, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /v1/abi_cache/get_abi", s.handleGetABI)
	s.mux.HandleFunc("GET /v1/abi_cache/global_sequence_height", s.handleHeight)
	s.mux.HandleFunc("POST /v1/abi_cache/decode_action", s.handleDecodeAction)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /openapi.json", spec.Handler())
	s.mux.Handle("GET /openapi.yaml", spec.Handler())
	return s
}

// Mux exposes the route table for validation against the OpenAPI document.
func (s *RPCServer) Mux() *http.ServeMux {
	return s.mux
}

func (s *RPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	s.mux.ServeHTTP(rec, r)

	metrics.RequestsTotal.WithLabelValues(routeLabel(r.URL.Path), strconv.Itoa(rec.status)).Inc()
	logger.Printf("debug-trace", "%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routeLabel(path string) string {
	switch path {
	case "/v1/abi_cache/get_abi", "/v1/abi_cache/global_sequence_height", "/v1/abi_cache/decode_action",
		"/health", "/openapi.json", "/openapi.yaml":
		return path
	}
	return "other"
}

type getABIResponse struct {
	Account     chain.Name         `json:"account"`
	AbiSequence uint32             `json:"abi_sequence"`
	ABI         interface{}        `json:"abi"`
	Trace       *querytrace.Output `json:"trace,omitempty"`
}

func wantsTrace(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("trace"))
	return v
}

func (s *RPCServer) handleGetABI(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	account, err := parseAccount(query.Get("account"))
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	version, err := parseVersion(query.Get("abi_sequence"))
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	trace := querytrace.New("get_abi", fmt.Sprintf("%s@%d", account, version))
	defer trace.Log()

	step := trace.Step("engine", "resolve")
	abi := s.engine.Resolve(r.Context(), account, version)
	step.End()
	if abi == nil {
		trace.SetOutcome("absent")
		server.WriteError(w, http.StatusNotFound, fmt.Sprintf("no ABI for %s at abi_sequence %d", account, version))
		return
	}

	resp := getABIResponse{Account: account, AbiSequence: version, ABI: abi}
	if canonical, _ := strconv.ParseBool(query.Get("canonical")); canonical && len(abi.Raw()) > 0 {
		step := trace.Step("abi", "canonical").Details("%d bytes", len(abi.Raw()))
		out, err := abicache.CanonicalJSON(abi.Raw())
		step.End()
		if err != nil {
			trace.SetOutcome("error")
			logger.Printf("http", "Canonical rendering of %s@%d failed: %v", account, version, err)
			server.WriteError(w, http.StatusInternalServerError, "failed to render ABI")
			return
		}
		resp.ABI = jsoniter.RawMessage(out)
	}
	trace.SetOutcome("found")
	if wantsTrace(r) {
		resp.Trace = trace.Output()
	}
	server.WriteJSON(w, http.StatusOK, resp)
}

func (s *RPCServer) handleHeight(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]uint64{
		"global_sequence_height": s.engine.GlobalHeight(),
	})
}

type decodeActionResponse struct {
	Account     chain.Name         `json:"account"`
	Action      chain.Name         `json:"action"`
	AbiSequence uint32             `json:"abi_sequence"`
	Data        interface{}        `json:"data"`
	Trace       *querytrace.Output `json:"trace,omitempty"`
}

func (s *RPCServer) handleDecodeAction(w http.ResponseWriter, r *http.Request) {
	params, err := server.GetRequestParams(r)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	accountStr, _ := params["account"].(string)
	account, err := parseAccount(accountStr)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	actionStr, _ := params["action"].(string)
	action, err := parseAccount(actionStr)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "action: "+err.Error())
		return
	}
	seq, ok := encoding.MaybeGetUint64(params["abi_sequence"])
	if !ok || seq > 0xFFFFFFFF {
		server.WriteError(w, http.StatusBadRequest, "abi_sequence must be a uint32")
		return
	}
	hexData, _ := params["data"].(string)
	data, err := hex.DecodeString(hexData)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "data must be hex")
		return
	}

	trace := querytrace.New("decode_action", fmt.Sprintf("%s::%s@%d", account, action, seq))
	defer trace.Log()

	step := trace.Step("engine", "decode").Details("%d bytes", len(data))
	decoded, err := s.engine.Decode(r.Context(), account, uint32(seq), action, data)
	step.End()
	if err != nil {
		trace.SetOutcome("error")
		status := http.StatusBadRequest
		if errors.Is(err, ErrABINotFound) || errors.Is(err, abicache.ErrUnknownAction) {
			status = http.StatusNotFound
		}
		server.WriteError(w, status, err.Error())
		return
	}
	trace.SetOutcome("found")
	resp := decodeActionResponse{
		Account:     account,
		Action:      action,
		AbiSequence: uint32(seq),
		Data:        decoded,
	}
	if wantsTrace(r) {
		resp.Trace = trace.Output()
	}
	server.WriteJSON(w, http.StatusOK, resp)
}

func (s *RPCServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	body := map[string]interface{}{
		"status":                 "ok",
		"traces":                 stats.Traces,
		"queue":                  stats.Pending,
		"abis":                   stats.CacheEntries,
		"global_sequence_height": stats.Height,
	}
	if err := s.engine.Err(); err != nil {
		body["status"] = "failed"
		body["error"] = err.Error()
		server.WriteJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	server.WriteJSON(w, http.StatusOK, body)
}

func parseAccount(s string) (chain.Name, error) {
	if s == "" {
		return 0, fmt.Errorf("account required")
	}
	name := chain.N(s)
	if name.String() != s {
		return 0, fmt.Errorf("invalid name %q", s)
	}
	return name, nil
}

func parseVersion(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("abi_sequence required")
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid abi_sequence %q", s)
	}
	return uint32(v), nil
}

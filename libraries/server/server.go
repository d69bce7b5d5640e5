package server

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/greymass/abicached/libraries/encoding"
)

// Enabled reports whether a listen option names an address; "" and "none"
// switch a listener off.
func Enabled(addr string) bool {
	return addr != "" && addr != "none"
}

// SocketListen listens on a unix socket when addr ends in .sock, otherwise
// on TCP.
func SocketListen(addr string) (net.Listener, error) {
	if strings.HasSuffix(addr, ".sock") {
		os.Remove(addr)
		l, err := net.Listen("unix", addr)
		if err != nil {
			return nil, fmt.Errorf("listen unix %s: %w", addr, err)
		}
		if err := os.Chmod(addr, 0777); err != nil {
			l.Close()
			return nil, fmt.Errorf("chmod %s: %w", addr, err)
		}
		return l, nil
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return l, nil
}

// GetRequestParams merges query parameters with a JSON object body, query
// values taking precedence.
func GetRequestParams(r *http.Request) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if r.Body != nil && r.ContentLength != 0 {
		defer r.Body.Close()
		if err := encoding.JSONiter.NewDecoder(r.Body).Decode(&params); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	for k, v := range r.URL.Query() {
		if len(v) == 1 {
			params[k] = v[0]
			continue
		}
		values := make([]interface{}, len(v))
		for i := range v {
			values[i] = v[i]
		}
		params[k] = values
	}
	return params, nil
}

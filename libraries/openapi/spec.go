package openapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"

	"github.com/pb33f/libopenapi"
	v3high "github.com/pb33f/libopenapi/datamodel/high/v3"
)

// Spec is a parsed OpenAPI 3 document with pre-rendered YAML and JSON forms.
type Spec struct {
	model    *v3high.Document
	yamlData []byte
	jsonData []byte
}

// Load parses yamlData; a non-empty version replaces info.version.
func Load(yamlData []byte, version string) (*Spec, error) {
	doc, err := libopenapi.NewDocument(yamlData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	model, err := doc.BuildV3Model()
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI model: %v", err)
	}
	if version != "" {
		model.Model.Info.Version = version
	}

	rendered, err := model.Model.Render()
	if err != nil {
		return nil, fmt.Errorf("failed to render OpenAPI as YAML: %w", err)
	}
	jsonData, err := model.Model.RenderJSON("")
	if err != nil {
		return nil, fmt.Errorf("failed to render OpenAPI as JSON: %w", err)
	}

	return &Spec{model: &model.Model, yamlData: rendered, jsonData: jsonData}, nil
}

func (s *Spec) Version() string {
	return s.model.Info.Version
}

func (s *Spec) JSON() []byte {
	return s.jsonData
}

// Routes lists every documented operation as "METHOD /path".
func (s *Spec) Routes() []string {
	var routes []string
	for path, item := range s.model.Paths.PathItems.FromOldest() {
		for _, method := range methods(item) {
			routes = append(routes, method+" "+path)
		}
	}
	return routes
}

func methods(item *v3high.PathItem) []string {
	var out []string
	if item.Get != nil {
		out = append(out, http.MethodGet)
	}
	if item.Post != nil {
		out = append(out, http.MethodPost)
	}
	if item.Put != nil {
		out = append(out, http.MethodPut)
	}
	if item.Delete != nil {
		out = append(out, http.MethodDelete)
	}
	if item.Patch != nil {
		out = append(out, http.MethodPatch)
	}
	return out
}

// ValidateMux checks that mux serves every documented operation.
func (s *Spec) ValidateMux(mux *http.ServeMux) error {
	var missing []string
	for _, route := range s.Routes() {
		method, path, _ := strings.Cut(route, " ")
		req := httptest.NewRequest(method, path, nil)
		if _, pattern := mux.Handler(req); pattern == "" {
			missing = append(missing, route)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("routes documented but not served: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s *Spec) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		if format == "yaml" || (format == "" && strings.Contains(r.Header.Get("Accept"), "yaml")) {
			w.Header().Set("Content-Type", "application/x-yaml")
			w.Write(s.yamlData)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(s.jsonData)
	})
}

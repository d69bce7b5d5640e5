package internal

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/greymass/abicached/libraries/logger"
	"github.com/greymass/abicached/libraries/openapi"
)

//go:embed openapi.yaml
var openapiYAML []byte

// LoadOpenAPI parses the embedded API document, stamping it with version.
func LoadOpenAPI(version string) (*openapi.Spec, error) {
	spec, err := openapi.Load(openapiYAML, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	return spec, nil
}

// ValidateRoutes fails when the document lists an operation mux does not
// serve.
func ValidateRoutes(spec *openapi.Spec, mux *http.ServeMux) error {
	if err := spec.ValidateMux(mux); err != nil {
		return fmt.Errorf("OpenAPI validation failed: %w", err)
	}
	logger.Printf("startup", "OpenAPI spec validated: %d routes match handlers", len(spec.Routes()))
	return nil
}

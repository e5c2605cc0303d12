package schema

import _ "embed"

// OpenAPI holds the embedded OpenAPI YAML for the XVIX ops API.
//
//go:embed openapi.yaml
var OpenAPI []byte

package http

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// getOpenAPIJSON returns the embedded OpenAPI document converted to JSON.
var getOpenAPIJSON = sync.OnceValues(func() ([]byte, error) {
	return yamlToJSON(openAPIYAML)
})

// yamlToJSON re-encodes a YAML document as indented JSON. yaml.v3 decodes
// mappings with string keys, other key types are rejected.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi yaml: %w", err)
	}
	doc, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

func jsonCompatible(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case map[string]interface{}:
		for key, value := range v {
			converted, err := jsonCompatible(value)
			if err != nil {
				return nil, err
			}
			v[key] = converted
		}
		return v, nil
	case map[interface{}]interface{}:
		return nil, fmt.Errorf("openapi yaml: non-string mapping key")
	case []interface{}:
		for i, value := range v {
			converted, err := jsonCompatible(value)
			if err != nil {
				return nil, err
			}
			v[i] = converted
		}
		return v, nil
	default:
		return v, nil
	}
}

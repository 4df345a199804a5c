package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestYAMLToJSON_KeepsKeyOrder(t *testing.T) {
	src := []byte(`
paths:
  /layers: {get: {summary: list}}
  /aaa:
    get:
      responses:
        "200": {description: ok}
defaults: &d
  limit: 10
  enabled: true
  ratio: 0.5
  empty: null
copy: *d
tags: [layers, viewport]
`)

	out, err := yamlToJSON(src)
	if err != nil {
		t.Fatalf("yamlToJSON() error = %v", err)
	}

	text := string(out)
	if strings.Index(text, `"/layers"`) > strings.Index(text, `"/aaa"`) {
		t.Errorf("paths reordered:\n%s", text)
	}

	var doc struct {
		Paths map[string]map[string]struct {
			Responses map[string]struct {
				Description string `json:"description"`
			} `json:"responses"`
		} `json:"paths"`
		Copy map[string]interface{} `json:"copy"`
		Tags []string               `json:"tags"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, text)
	}
	if doc.Paths["/aaa"]["get"].Responses["200"].Description != "ok" {
		t.Errorf("nested response lost: %s", text)
	}
	if doc.Copy["limit"] != float64(10) || doc.Copy["enabled"] != true || doc.Copy["ratio"] != 0.5 {
		t.Errorf("alias scalars = %v", doc.Copy)
	}
	if v, ok := doc.Copy["empty"]; !ok || v != nil {
		t.Errorf("null scalar = %v, present %v", v, ok)
	}
	if len(doc.Tags) != 2 {
		t.Errorf("tags = %v", doc.Tags)
	}
}

func TestYAMLToJSON_Invalid(t *testing.T) {
	if _, err := yamlToJSON([]byte("a: [unclosed")); err == nil {
		t.Error("yamlToJSON() should fail on malformed YAML")
	}
}

func TestEmbeddedOpenAPIDocument(t *testing.T) {
	out, err := loadOpenAPI()
	if err != nil {
		t.Fatalf("loadOpenAPI() error = %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("embedded document is not valid JSON: %v", err)
	}
	if _, ok := doc["paths"]; !ok {
		t.Error("embedded document has no paths")
	}
}

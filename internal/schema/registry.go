// Package schema holds the JSON Schemas that structured LLM output must
// satisfy before a stage will accept it.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed plan_schema.json
var planSchemaJSON string

//go:embed source_summary_schema.json
var sourceSummarySchemaJSON string

//go:embed final_brief_schema.json
var finalBriefSchemaJSON string

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileAll() {
	sources := map[string]string{
		"plan_schema.json":           planSchemaJSON,
		"source_summary_schema.json": sourceSummarySchemaJSON,
		"final_brief_schema.json":    finalBriefSchemaJSON,
	}
	compiled = make(map[string]*jsonschema.Schema, len(sources))
	for name, src := range sources {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
			compileErr = fmt.Errorf("add schema resource %s: %w", name, err)
			return
		}
		s, err := compiler.Compile(name)
		if err != nil {
			compileErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		compiled[name] = s
	}
}

func get(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(compileAll)
	if compileErr != nil {
		return nil, compileErr
	}
	return compiled[name], nil
}

// Plan returns the compiled schema for research plan documents.
func Plan() (*jsonschema.Schema, error) { return get("plan_schema.json") }

// SourceSummary returns the compiled schema for per-source summaries.
func SourceSummary() (*jsonschema.Schema, error) { return get("source_summary_schema.json") }

// FinalBrief returns the compiled schema for the synthesized brief.
func FinalBrief() (*jsonschema.Schema, error) { return get("final_brief_schema.json") }

// Validate checks raw JSON bytes against a compiled schema.
func Validate(s *jsonschema.Schema, data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("does not match schema: %w", err)
	}
	return nil
}

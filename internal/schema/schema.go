// Package schema validates JSON inputs against the embedded schemas before
// they are decoded.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	Atoms      = "atoms.schema.json"
	RawRecords = "records.schema.json"
)

//go:embed *.schema.json
var files embed.FS

var (
	cacheMu sync.Mutex
	cache   = make(map[string]*jsonschema.Schema)
)

func compiled(name string) (*jsonschema.Schema, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[name]; ok {
		return s, nil
	}

	data, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("unknown schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	cache[name] = s
	return s, nil
}

// Validate checks data against the named schema. Malformed JSON is reported
// as a decode error.
func Validate(name string, data []byte) error {
	s, err := compiled(name)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to decode %s input: %w", name, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s validation failed: %w", name, err)
	}
	return nil
}

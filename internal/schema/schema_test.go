package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Atoms(t *testing.T) {
	valid := `{"c/f()": {"display-name": "f", "dependencies": ["c/g()"], "code-path": "src/m.rs",
		"code-text": {"lines-start": 1, "lines-end": 4}, "mode": "exec",
		"dependencies-with-locations": [{"code-name": "c/g()", "location": "body", "line": 2}]}}`
	assert.NoError(t, Validate(Atoms, []byte(valid)))
	assert.NoError(t, Validate(Atoms, []byte(`{}`)))

	tests := []struct {
		name string
		data string
	}{
		{"not an object", `[]`},
		{"missing dependencies", `{"c/f()": {"display-name": "f", "code-path": "a.rs", "code-text": {"lines-start": 1, "lines-end": 2}}}`},
		{"string line", `{"c/f()": {"display-name": "f", "dependencies": [], "code-path": "a.rs", "code-text": {"lines-start": "1", "lines-end": 2}}}`},
		{"unknown location", `{"c/f()": {"display-name": "f", "dependencies": [], "code-path": "a.rs", "code-text": {"lines-start": 1, "lines-end": 2},
			"dependencies-with-locations": [{"code-name": "c/g()", "location": "elsewhere", "line": 2}]}}`},
		{"truncated", `{"c/f()": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(Atoms, []byte(tt.data)))
		})
	}
}

func TestValidate_RawRecords(t *testing.T) {
	assert.NoError(t, Validate(RawRecords, []byte(`[{"symbol": "m/f()", "file": "src/m.rs", "line": 4,
		"calls": [{"symbol": "m/g()", "line": 5, "column": 2}]}]`)))

	assert.Error(t, Validate(RawRecords, []byte(`[{"symbol": "", "file": "src/m.rs", "line": 4}]`)))
	assert.Error(t, Validate(RawRecords, []byte(`[{"symbol": "m/f()", "line": 4}]`)))
	assert.Error(t, Validate(RawRecords, []byte(`[{"symbol": "m/f()", "file": "src/m.rs", "line": -1}]`)))
	assert.Error(t, Validate("missing.schema.json", []byte(`[]`)))
}

// Package scip loads code-structure indexes in the SCIP format and converts
// them into raw symbol records.
package scip

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"verimap/internal/schema"
	"verimap/internal/symbols"
)

// ErrInvalidIndex is returned for input that is neither a SCIP index nor a
// raw symbol list.
var ErrInvalidIndex = errors.New("invalid code-structure index")

// Input is a loaded index: either a SCIP index to convert, or records that
// were already converted.
type Input struct {
	Index   *scippb.Index
	Records []symbols.RawIndexSymbol
}

// LoadFile reads an index from path. See Parse for the accepted formats.
func LoadFile(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}
	in, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// Parse decodes a binary SCIP index, its JSON rendering (`scip print
// --json`), or a JSON array of RawIndexSymbol records.
func Parse(data []byte) (*Input, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidIndex)
	}

	switch trimmed[0] {
	case '[':
		if err := schema.Validate(schema.RawRecords, trimmed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
		}
		var records []symbols.RawIndexSymbol
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
		}
		return &Input{Records: records}, nil
	case '{':
		var idx scippb.Index
		opts := protojson.UnmarshalOptions{DiscardUnknown: true}
		if err := opts.Unmarshal(trimmed, &idx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
		}
		return &Input{Index: &idx}, nil
	}

	var idx scippb.Index
	if err := proto.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	if len(idx.Documents) == 0 && idx.Metadata == nil {
		return nil, fmt.Errorf("%w: no documents", ErrInvalidIndex)
	}
	return &Input{Index: &idx}, nil
}

// Symbols returns the raw records of the input, converting a SCIP index
// when needed.
func (in *Input) Symbols(opts Options) []symbols.RawIndexSymbol {
	if in.Index == nil {
		return in.Records
	}
	return Convert(in.Index, opts)
}

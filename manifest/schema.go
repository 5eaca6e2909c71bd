package manifest

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
)

//go:embed schema.cue
var schemaSource string

// Problem is one schema violation. Path is the dotted key path, empty for
// the document itself.
type Problem struct {
	Path    []string
	Message string
}

// SchemaError lists the schema violations of a manifest.
type SchemaError struct {
	File     string
	Problems []Problem
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v:", e.File, ErrInvalidManifest)
	for _, p := range e.Problems {
		b.WriteString("\n    ")
		if len(p.Path) > 0 {
			b.WriteString(strings.Join(p.Path, "."))
			b.WriteString(": ")
		}
		b.WriteString(p.Message)
	}
	return b.String()
}

func (e *SchemaError) Unwrap() error { return ErrInvalidManifest }

// Validate checks pig.toml contents against the manifest schema. Unknown
// keys, missing required keys and out of range values are reported as a
// *SchemaError.
func Validate(data []byte, path string) error {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse error in %s: %w", path, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		se := &SchemaError{File: path}
		for _, e := range cueerrors.Errors(err) {
			format, args := e.Msg()
			se.Problems = append(se.Problems, Problem{
				Path:    schemaPath(e.Path()),
				Message: fmt.Sprintf(format, args...),
			})
		}
		return se
	}
	return nil
}

// schemaPath drops the definition name CUE puts in front of the key path.
func schemaPath(path []string) []string {
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		return path[1:]
	}
	return path
}

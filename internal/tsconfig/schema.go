package tsconfig

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jward/tsuparser/internal/diagnostic"
)

//go:embed tsconfig.schema.json
var schemaJSON []byte

const schemaURL = "mem://schemas/tsconfig.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("decode tsconfig schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("register tsconfig schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

var printer = message.NewPrinter(language.English)

// validate checks doc against the embedded schema and converts each leaf
// validation error into a compiler diagnostic positioned at the offending key.
func validate(path string, data []byte, lines *diagnostic.LineMap, doc map[string]any) []diagnostic.Diagnostic {
	sch, err := compiledSchema()
	if err != nil {
		return []diagnostic.Diagnostic{diagnostic.Global(5024, "%v", err)}
	}
	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []diagnostic.Diagnostic{diagnostic.Global(5024, "%v", err)}
	}

	var out []diagnostic.Diagnostic
	for _, leaf := range leaves(ve) {
		loc := leaf.InstanceLocation
		name := ""
		if len(loc) > 0 {
			name = loc[len(loc)-1]
		}
		switch k := leaf.ErrorKind.(type) {
		case *kind.AdditionalProperties:
			for _, prop := range k.Properties {
				at := locate(data, append(append([]string(nil), loc...), prop))
				out = append(out, lines.At(path, at, 5023, "Unknown compiler option '%s'.", prop))
			}
		case *kind.Type:
			want := strings.Join(k.Want, " or ")
			if want == "array" {
				want = "Array"
			}
			out = append(out, lines.At(path, locate(data, loc), 5024,
				"Compiler option '%s' requires a value of type %s.", name, want))
		case *kind.Pattern:
			out = append(out, lines.At(path, locate(data, loc), 6046,
				"Argument for '--%s' option must be: %s.", name, patternChoices(k.Want)))
		default:
			out = append(out, lines.At(path, locate(data, loc), 5024,
				"%s.", sentence(leaf.ErrorKind.LocalizedString(printer))))
		}
	}
	return out
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

// patternChoices renders an anchored alternation such as
// "(?i)^(es3|es5)$" as "'es3', 'es5'".
func patternChoices(pattern string) string {
	p := strings.TrimPrefix(pattern, "(?i)")
	p = strings.TrimPrefix(p, "^(")
	p = strings.TrimSuffix(p, ")$")
	parts := strings.Split(p, "|")
	for i, s := range parts {
		parts[i] = "'" + s + "'"
	}
	return strings.Join(parts, ", ")
}

package tsuparser

import "encoding/json"

// TypeDescriptor is one member of a rendered type: the element type name
// with every "[]" suffix stripped, and how many were stripped.
type TypeDescriptor struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
}

// Parameter describes one parameter of an exported function. Types holds
// one descriptor per union member.
type Parameter struct {
	Name     string           `json:"name"`
	Types    []TypeDescriptor `json:"types"`
	Optional bool             `json:"optional"`
}

// ExportedFunction is a callable entry point of a script file. Line and
// Character are 1-based and point at the start of the declaration,
// including its leading doc comment.
type ExportedFunction struct {
	Name        string           `json:"name"`
	Parameters  []Parameter      `json:"parameters"`
	ReturnTypes []TypeDescriptor `json:"returnTypes"`
	Line        int              `json:"line"`
	Character   int              `json:"character"`
}

// Result is the outcome of analysing one file. A failed result carries
// only Errors; a successful one may still carry recoverable errors such as
// rejected union return types.
type Result struct {
	FileName     string
	Name         string
	Path         string
	Source       string
	Errors       []string
	Exports      []ExportedFunction
	Dependencies []string

	failed bool
}

// Failure returns a failed result holding errors.
func Failure(errors []string) *Result {
	return &Result{Errors: errors, failed: true}
}

// Failed reports whether the file could not be analysed.
func (r *Result) Failed() bool { return r.failed }

type successJSON struct {
	FileName     string             `json:"fileName"`
	Name         string             `json:"name"`
	Path         string             `json:"path"`
	Source       string             `json:"source"`
	Errors       []string           `json:"errors"`
	Exports      []ExportedFunction `json:"exports"`
	Dependencies []string           `json:"dependencies"`
}

type failureJSON struct {
	Errors []string `json:"errors"`
}

// MarshalJSON writes a failure as {"errors": [...]} and a success with
// every field, using empty arrays rather than null.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.failed {
		return json.Marshal(failureJSON{Errors: orEmpty(r.Errors)})
	}
	exports := r.Exports
	if exports == nil {
		exports = []ExportedFunction{}
	}
	return json.Marshal(successJSON{
		FileName:     r.FileName,
		Name:         r.Name,
		Path:         r.Path,
		Source:       r.Source,
		Errors:       orEmpty(r.Errors),
		Exports:      exports,
		Dependencies: orEmpty(r.Dependencies),
	})
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

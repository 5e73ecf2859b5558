package service

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError lists every rejected submission field. It is never
// persisted.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid document: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ExternalStorageError reports a failed call to the attachment provider
type ExternalStorageError struct {
	Op  string
	Ref string
	Err error
}

func (e *ExternalStorageError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("attachment %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("attachment %s of %s failed: %v", e.Op, e.Ref, e.Err)
}

func (e *ExternalStorageError) Unwrap() error {
	return e.Err
}

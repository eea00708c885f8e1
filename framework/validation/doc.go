// Package validation checks flat string inputs against pipe-separated rules.
// The container uses it to vet scope manifests before applying them.
//
// # Basic Usage
//
//	v := validation.Make(map[string]string{
//	    "name": "request",
//	    "to":   "~IDBConn",
//	}, validation.Rules{
//	    "name": "required|alpha_dash|max:64",
//	    "to":   "required|expression",
//	})
//
//	if err := v.Err(); err != nil {
//	    // *Errors: Bag map[string][]string
//	    // JSON: {"errors": {"field": ["message1", "message2"]}}
//	}
//
// # Available Rules
//
// String rules:
//   - required   — field must be present and non-empty
//   - nullable   — an empty value skips the remaining rules
//   - min:n      — minimum n UTF-8 characters
//   - max:n      — maximum n UTF-8 characters
//   - alpha_dash — letters, digits, dots, dashes, underscores
//   - regex:pat  — must match the regular expression
//   - in:a,b     — one of the listed values
//   - not_in:a,b — none of the listed values
//   - different:other — must differ from another field
//
// Typed rules:
//   - integer, boolean
//
// Expression rules:
//   - dotted     — dotted identifier ("demo.MySQLConn")
//   - variable   — variable name with optional "@" or "@@" marker
//   - variable:scoped — variable name with at most one "@"
//   - expression — injection expression accepted by expr.ParseTarget
//   - source     — binding source accepted by expr.ParseSource
//
// Rules stop at the first failure for each field.
package validation

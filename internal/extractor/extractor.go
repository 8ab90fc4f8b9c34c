// Package extractor pulls fields out of JSON response bodies. Every function
// is tolerant of empty, null and malformed input and reports "nothing found"
// instead of an error.
package extractor

import (
	"github.com/tidwall/gjson"
)

// Field returns the value at path as a string, or "" when absent.
// Path accepts "$.field", "field" and bare "$" for the whole document.
func Field(body []byte, path string) string {
	result, ok := lookup(body, path)
	if !ok || result.Type == gjson.Null {
		return ""
	}
	return result.String()
}

// Strings returns the string elements of the array at path. A null, missing
// or non-array value yields nil. Non-string elements are skipped.
func Strings(body []byte, path string) []string {
	result, ok := lookup(body, path)
	if !ok || !result.IsArray() {
		return nil
	}
	var out []string
	result.ForEach(func(_, value gjson.Result) bool {
		if value.Type == gjson.String && value.Str != "" {
			out = append(out, value.Str)
		}
		return true
	})
	return out
}

func lookup(body []byte, path string) (gjson.Result, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	result := gjson.GetBytes(body, normalizePath(path))
	return result, result.Exists()
}

package extractor

import (
	"reflect"
	"testing"
)

func TestField(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
		want string
	}{
		{"top level", `{"access_token":"abc"}`, "access_token", "abc"},
		{"dollar prefix", `{"access_token":"abc"}`, "$.access_token", "abc"},
		{"nested", `{"user":{"uuid":"u-1"}}`, "user.uuid", "u-1"},
		{"number", `{"count":3}`, "count", "3"},
		{"missing", `{"other":"x"}`, "access_token", ""},
		{"null value", `{"uuid":null}`, "uuid", ""},
		{"empty body", ``, "uuid", ""},
		{"malformed", `{"uuid":`, "uuid", ""},
		{"not json", `Friend added`, "uuid", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Field([]byte(tt.body), tt.path); got != tt.want {
				t.Errorf("Field(%q, %q) = %q, want %q", tt.body, tt.path, got, tt.want)
			}
		})
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
		want []string
	}{
		{"root array", `["a","b"]`, "$", []string{"a", "b"}},
		{"root array empty path", `["a"]`, "", []string{"a"}},
		{"nested array", `{"friends":["x","y"]}`, "friends", []string{"x", "y"}},
		{"null", `null`, "$", nil},
		{"empty array", `[]`, "$", nil},
		{"object not array", `{"a":1}`, "$", nil},
		{"mixed elements", `["a",1,null,"",{"b":2},"c"]`, "$", []string{"a", "c"}},
		{"malformed", `["a",`, "$", nil},
		{"empty body", ``, "$", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Strings([]byte(tt.body), tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Strings(%q, %q) = %#v, want %#v", tt.body, tt.path, got, tt.want)
			}
		})
	}
}

package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type BodySource interface {
	NewReader() (io.ReadCloser, error)
	ContentLength() (int64, bool)
	Empty() bool
}

// NewJSONBody encodes v once so the body can be replayed on retries.
// Strings and byte slices are sent verbatim; nil produces an empty body.
func NewJSONBody(v any) (BodySource, error) {
	switch body := v.(type) {
	case nil:
		return emptyBodySource{}, nil
	case []byte:
		return &inlineBodySource{data: body}, nil
	case string:
		return &inlineBodySource{data: []byte(body)}, nil
	case json.RawMessage:
		return &inlineBodySource{data: body}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return &inlineBodySource{data: data}, nil
}

type inlineBodySource struct {
	data []byte
}

func (s *inlineBodySource) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *inlineBodySource) ContentLength() (int64, bool) {
	return int64(len(s.data)), true
}

func (s *inlineBodySource) Empty() bool {
	return len(s.data) == 0
}

type emptyBodySource struct{}

func (emptyBodySource) NewReader() (io.ReadCloser, error) {
	return http.NoBody, nil
}

func (emptyBodySource) ContentLength() (int64, bool) {
	return 0, true
}

func (emptyBodySource) Empty() bool {
	return true
}

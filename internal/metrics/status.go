package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// StatusBucket represents the aggregated failure count for a route/code pair.
type StatusBucket struct {
	Route string
	Code  string
	Count int
}

// FlattenStatusBuckets converts a nested route->status map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by route/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for route, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Route: route, Code: code, Count: count})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Route == rows[j].Route {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Route < rows[j].Route
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// RouteStatusBuckets returns the per-route failure buckets of s keyed by route key.
func (s Stats) RouteStatusBuckets() map[string]map[string]int {
	if len(s.Routes) == 0 {
		return nil
	}
	out := make(map[string]map[string]int)
	for key, rs := range s.Routes {
		if len(rs.StatusBuckets) == 0 {
			continue
		}
		out[key] = rs.StatusBuckets
	}
	return out
}

// StatusLabel returns the failure bucket for an outcome: the HTTP status code
// when one was received, otherwise the sanitized error kind.
func StatusLabel(o Outcome) string {
	if o.StatusCode > 0 {
		return strconv.Itoa(o.StatusCode)
	}
	return SanitizeStatusCode(o.ErrorKind)
}

// SanitizeStatusCode upper-cases s and replaces separators with underscores.
func SanitizeStatusCode(status string) string {
	trimmed := strings.TrimSpace(status)
	if trimmed == "" {
		return "UNKNOWN"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", ".", "_", "-", "_")
	normalized := replacer.Replace(trimmed)
	normalized = strings.ToUpper(normalized)
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

// ErrorKind classifies a transport error into a status bucket name.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	if errors.Is(err, context.Canceled) {
		return "CANCELED"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "TIMEOUT"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "URL_ERROR"
	}

	typeName := fmt.Sprintf("%T", err)
	typeName = strings.TrimPrefix(typeName, "*")
	if idx := strings.LastIndex(typeName, "/"); idx != -1 {
		typeName = typeName[idx+1:]
	}
	if idx := strings.LastIndex(typeName, "."); idx != -1 {
		typeName = typeName[idx+1:]
	}
	return SanitizeStatusCode(typeName)
}

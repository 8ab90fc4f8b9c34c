package metrics

import (
	"net/http"
	"regexp"
	"strings"
)

// Placeholders substituted for identifier segments.
const (
	UserIDPlaceholder  = "[userId]"
	PlainIDPlaceholder = "[id]"
)

var (
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	ulidSegment    = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Za-hjkmnp-tv-z]{26}$`)
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
)

// userScoped lists the collections whose identifier segment names a user.
var userScoped = map[string]bool{
	"profile": true,
	"posts":   true,
	"users":   true,
}

// reservedSegments are literal path parts that look dynamic but are not.
var reservedSegments = map[string]bool{
	"me": true,
}

// NormalizeRoute collapses dynamic identifier segments so metrics aggregate
// across identifiers: "/api/profile/4f0c..." becomes "/api/profile/[userId]".
// The segment after a user-scoped collection is an identifier whatever its
// format; elsewhere only uuid, ULID and numeric segments are. Query strings
// are dropped.
func NormalizeRoute(path string) string {
	if idx := strings.IndexAny(path, "?#"); idx != -1 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" || reservedSegments[seg] {
			continue
		}
		switch {
		case i > 0 && userScoped[segments[i-1]]:
			segments[i] = UserIDPlaceholder
		case isIdentifier(seg):
			segments[i] = PlainIDPlaceholder
		}
	}
	return strings.Join(segments, "/")
}

// RouteLabel returns the metrics label for a call. Calls that share a path but
// have different meaning get a suffix so they are reported apart, e.g.
// "POST /api/friends" is labeled "/api/friends (add)".
func RouteLabel(method, path string) string {
	label := NormalizeRoute(path)
	if strings.HasSuffix(label, "/friends") {
		switch strings.ToUpper(method) {
		case http.MethodPost:
			return label + " (add)"
		case http.MethodDelete:
			return label + " (delete)"
		}
	}
	return label
}

func isIdentifier(seg string) bool {
	return uuidSegment.MatchString(seg) || ulidSegment.MatchString(seg) || numericSegment.MatchString(seg)
}

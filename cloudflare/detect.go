// Package cloudflare detects anti-bot challenge responses and resolves them
// through pluggable external solver services. Resolver failures are always
// swallowed: a solver that cannot help is the same as no solver at all.
package cloudflare

import (
	"regexp"
	"strings"
)

// BlockReason says why a response was classified as blocked.
type BlockReason string

const (
	ReasonStatusCode BlockReason = "status_code"
	ReasonHTMLMarker BlockReason = "html_marker"
)

// Detection is the outcome of classifying a response.
type Detection struct {
	Blocked    bool
	Reason     BlockReason
	StatusCode int
}

// Known challenge-page text markers.
var challengeMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)__cf_chl_jschl_tk__`),
	regexp.MustCompile(`(?i)cf-browser-verification`),
	regexp.MustCompile(`(?i)attention required!?\s*\|\s*cloudflare`),
	regexp.MustCompile(`(?i)ddos protection by cloudflare`),
	regexp.MustCompile(`(?i)checking your browser before accessing`),
	regexp.MustCompile(`(?i)ray id`),
}

// Detect classifies a response. A 403 or 503 status is blocked regardless of
// body; otherwise an HTML body containing any known challenge marker is
// blocked. The body slice is only read, never consumed, so callers keep it
// usable on the non-blocked path.
func Detect(statusCode int, contentType string, body []byte) Detection {
	if statusCode == 403 || statusCode == 503 {
		return Detection{Blocked: true, Reason: ReasonStatusCode, StatusCode: statusCode}
	}

	if !strings.Contains(strings.ToLower(contentType), "html") {
		return Detection{StatusCode: statusCode}
	}

	for _, marker := range challengeMarkers {
		if marker.Match(body) {
			return Detection{Blocked: true, Reason: ReasonHTMLMarker, StatusCode: statusCode}
		}
	}

	return Detection{StatusCode: statusCode}
}

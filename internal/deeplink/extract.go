// Package deeplink pulls a session token out of an incoming deep link or universal link.
package deeplink

import (
	"regexp"
	"strings"

	"github.com/and161185/awclaim/internal/model"
)

// Recognized link shapes, in match priority.
const (
	ShapeNone = iota
	ShapePath
	ShapeQuery
	ShapeLegacy
)

// rePathClaim has no segment anchors: ".../mysession/X/claim" and ".../session/X/claimed" both yield X.
var rePathClaim = regexp.MustCompile(`session/([^/]+)/claim`)

const (
	queryKey  = "session="
	legacyKey = "/v.php?s="
)

// ExtractSessionToken returns the token carried by raw, if any.
// Shapes are tried in order: .../session/{T}/claim, ...session={T}, .../v.php?s={T}.
// The first shape that matches decides the result even if its value is empty.
func ExtractSessionToken(raw string) (model.SessionToken, bool) {
	tok, _, ok := Extract(raw)
	return tok, ok
}

// Extract is ExtractSessionToken that also reports which shape matched.
func Extract(raw string) (model.SessionToken, int, bool) {
	if m := rePathClaim.FindStringSubmatch(raw); m != nil {
		return model.SessionToken(m[1]), ShapePath, true
	}
	if _, rest, ok := strings.Cut(raw, queryKey); ok {
		return nonEmpty(untilAmp(rest), ShapeQuery)
	}
	if _, rest, ok := strings.Cut(raw, legacyKey); ok {
		return nonEmpty(untilAmp(rest), ShapeLegacy)
	}
	return "", ShapeNone, false
}

func untilAmp(s string) string {
	v, _, _ := strings.Cut(s, "&")
	return v
}

func nonEmpty(v string, shape int) (model.SessionToken, int, bool) {
	if v == "" {
		return "", shape, false
	}
	return model.SessionToken(v), shape, true
}

// Package textutil holds the locale-aware text and price normalizers shared
// by the merchant extractors and the aggregator. All functions are pure.
package textutil

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"atlas-taman/models"
)

// NormalizeText decomposes the input (NFD), strips diacritics and lowercases
// it, so "Électroménager" and "electromenager" normalize identically.
func NormalizeText(value string) string {
	decomposed := norm.NFD.String(value)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// NormalizeQuery trims and normalizes a search query.
func NormalizeQuery(query string) string {
	return NormalizeText(strings.TrimSpace(query))
}

// ParsePrice extracts a numeric amount from a merchant price string.
// It keeps only digits, comma, dot and minus, treats the comma as a decimal
// separator and keeps only the last dot as the decimal point (earlier dots
// are treated as thousands separators). "1 234,00 DH" parses to 1234.
// The boolean is false when no finite number remains.
func ParsePrice(text string) (float64, bool) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	sanitized := strings.ReplaceAll(b.String(), ",", ".")
	if n := strings.Count(sanitized, "."); n > 1 {
		last := strings.LastIndex(sanitized, ".")
		sanitized = strings.ReplaceAll(sanitized[:last], ".", "") + sanitized[last:]
	}
	value, err := strconv.ParseFloat(sanitized, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

// freePattern matches the keyword stem for free shipping in the locales the
// merchants use ("gratuit", "gratuite", "free").
var freePattern = regexp.MustCompile(`gratuit|free`)

// ParseShippingFee parses a shipping fee string. When the text holds no
// numeric value but matches a "free" keyword, the fee is zero.
func ParseShippingFee(text string) (float64, bool) {
	if fee, ok := ParsePrice(text); ok {
		return fee, true
	}
	if freePattern.MatchString(NormalizeText(text)) {
		return 0, true
	}
	return 0, false
}

// Negative fragments are checked strictly before positive ones so that
// phrases like "non disponible" resolve to out of stock even though they
// contain a positive fragment.
var (
	negativeAvailability = []string{
		"out of stock",
		"rupture",
		"epuise",
		"indisponible",
		"hors stock",
		"non disponible",
	}
	positiveAvailability = []string{
		"in stock",
		"en stock",
		"stock",
		"available",
		"disponible",
	}
)

// ParseAvailability maps an availability phrase onto the availability enum.
func ParseAvailability(text string) models.Availability {
	normalized := NormalizeText(text)
	if strings.TrimSpace(normalized) == "" {
		return models.AvailabilityUnknown
	}
	for _, fragment := range negativeAvailability {
		if strings.Contains(normalized, fragment) {
			return models.AvailabilityOutOfStock
		}
	}
	for _, fragment := range positiveAvailability {
		if strings.Contains(normalized, fragment) {
			return models.AvailabilityInStock
		}
	}
	return models.AvailabilityUnknown
}

var extensionPattern = regexp.MustCompile(`(?i)\.(html?|php|aspx?|jsp)$`)

// Slugify turns an arbitrary title or URL into a grouping key. URL scheme,
// host, query string, fragment and a trailing file extension are stripped,
// underscores become separators, the rest is normalized and non-alphanumeric
// runs collapse into single hyphens. Slugify(Slugify(x)) == Slugify(x).
func Slugify(input string) string {
	s := input
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
		if slash := strings.Index(s, "/"); slash >= 0 {
			s = s[slash:]
		} else {
			s = ""
		}
	}
	if idx := strings.IndexAny(s, "?#"); idx >= 0 {
		s = s[:idx]
	}
	s = extensionPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "_", " ")
	s = NormalizeText(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

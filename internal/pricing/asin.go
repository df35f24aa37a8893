// Package pricing resolves product identifiers to purchase prices.
// The dialog core depends only on the Provider interface; the Amazon
// PAAPI implementation is optional and selected by configuration.
package pricing

import (
	"regexp"
	"strings"
)

var (
	asinPattern      = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	dpPattern        = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
	gpProductPattern = regexp.MustCompile(`/gp/product/([A-Z0-9]{10})`)
	productPattern   = regexp.MustCompile(`/product/([A-Z0-9]{10})`)
)

// ExtractASIN pulls a product identifier out of a bare ASIN or a
// product URL of a known shape. Returns "" when nothing matches.
func ExtractASIN(value string) string {
	candidate := strings.TrimSpace(value)
	if asinPattern.MatchString(candidate) {
		return candidate
	}
	for _, re := range []*regexp.Regexp{dpPattern, gpProductPattern, productPattern} {
		if m := re.FindStringSubmatch(candidate); m != nil {
			return m[1]
		}
	}
	return ""
}

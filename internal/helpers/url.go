package helpers

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_id":       {},
	"gclid":        {},
	"dclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"igshid":       {},
}

// CanonicalURL normalises a URL for comparison: scheme and host are
// lowercased (https assumed when missing), default ports and fragments
// dropped, the path cleaned, tracking parameters (utm_*, fbclid, ...)
// removed and the remaining query sorted deterministically. Input that does
// not parse is returned trimmed but otherwise unchanged, so the result is
// always usable as a stable identity.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			parsed, err = url.Parse("https:" + raw)
		} else {
			parsed, err = url.Parse("https://" + raw)
		}
		if err != nil {
			return raw
		}
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)

	host := strings.ToLower(parsed.Host)
	if h, p, ok := strings.Cut(host, ":"); ok {
		if (parsed.Scheme == "http" && p == "80") || (parsed.Scheme == "https" && p == "443") {
			host = h
		}
	}
	parsed.Host = host

	cleaned := path.Clean(parsed.Path)
	if cleaned == "." || cleaned == "" {
		cleaned = "/"
	}
	if cleaned != "/" && strings.HasSuffix(parsed.Path, "/") {
		cleaned += "/"
	}
	parsed.Path = cleaned

	parsed.Fragment = ""

	query := parsed.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	for _, values := range query {
		sort.Strings(values)
	}
	// Encode sorts by key, which gives a deterministic order.
	parsed.RawQuery = query.Encode()

	return parsed.String()
}

// URLFingerprint returns a stable hex digest of the canonical form of raw.
// Two URLs that differ only in tracking parameters, fragments or host case
// share a fingerprint.
func URLFingerprint(raw string) string {
	sum := md5.Sum([]byte(CanonicalURL(raw)))
	return hex.EncodeToString(sum[:])
}

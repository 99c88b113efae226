// Package curlparse turns a captured cURL command into a replayable
// request descriptor (URL, headers, JSON body).
//
// Parsing is best-effort by design: the input is free-form text pasted out
// of browser devtools, so everything except the target URL degrades
// gracefully. A body that fails strict JSON parsing falls back to
// field-by-field extraction of the known identifiers.
package curlparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedTemplate is returned when no target URL can be located in the
// template. This is the only hard failure of the parser.
var ErrMalformedTemplate = errors.New("malformed template: no request URL found")

// Headers computed by the transport or already handled elsewhere. Values
// captured under these keys from -H flags are discarded.
var deniedHeaders = map[string]bool{
	"cookie":          true,
	"content-length":  true,
	"accept-encoding": true,
}

// Default headers applied for any key not explicitly present in the template.
var defaultHeaders = map[string]string{
	"accept":          "application/json",
	"accept-language": "en-US,en;q=0.9",
	"appid":           "112",
	"content-type":    "application/json",
	"origin":          "https://resdex.naukri.com",
	"systemid":        "naukriIndia",
	"user-agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// Target URL: first quoted token after the curl verb, optional -X METHOD.
	urlSingle = regexp.MustCompile(`(?i)curl\s+(?:-X\s+\w+\s+)?'([^']+)'`)
	urlDouble = regexp.MustCompile(`(?i)curl\s+(?:-X\s+\w+\s+)?"([^"]+)"`)

	// Credential from the dedicated -b flag, preferred over the cookie header.
	cookieFlagSingle = regexp.MustCompile(`(?i)-b\s+'([^']+)'`)
	cookieFlagDouble = regexp.MustCompile(`(?i)-b\s+"([^"]+)"`)

	// Credential from a -H 'cookie: ...' header.
	cookieHeaderSingle = regexp.MustCompile(`(?i)-H\s+'cookie:\s*([^']+)'`)
	cookieHeaderDouble = regexp.MustCompile(`(?i)-H\s+"cookie:\s*([^"]+)"`)

	// Single alternation so mixed-quote templates resolve duplicate
	// headers by position, not by quote style.
	headerFlag = regexp.MustCompile(`-H\s+(?:'([^:']+):\s*([^']*)'|"([^:"]+):\s*([^"]*)")`)

	dataSingle = regexp.MustCompile(`(?i)(?:--data-raw|--data|-d)\s+'(.+?)'`)
	dataDouble = regexp.MustCompile(`(?i)(?:--data-raw|--data|-d)\s+"(.+?)"`)

	// Fallback body extraction of the minimal identifier set.
	reqIDField    = regexp.MustCompile(`requirementId["']?\s*:\s*["']?(\d+)`)
	companyField  = regexp.MustCompile(`companyId["']?\s*:\s*(\d+)`)
	userIDField   = regexp.MustCompile(`rdxUserId["']\s*:\s*["']([^"']+)`)
	userNameField = regexp.MustCompile(`rdxUserName["']\s*:\s*["']([^"']+)`)
)

// Descriptor is an immutable, replayable request template. Callers must not
// mutate it after Parse; per-call variations go through Clone.
type Descriptor struct {
	URL     string
	Headers map[string]string
	Body    map[string]any
}

// Parse extracts a Descriptor from a raw cURL command. It fails only when no
// target URL can be located; every other extraction degrades gracefully.
func Parse(raw string) (*Descriptor, error) {
	normalized := normalize(raw)

	url, ok := extractURL(normalized)
	if !ok {
		return nil, ErrMalformedTemplate
	}

	d := &Descriptor{
		URL:     url,
		Headers: make(map[string]string),
	}

	if cookie, ok := extractCookie(normalized); ok {
		d.Headers["cookie"] = cookie
	}

	extractHeaders(normalized, d.Headers)
	d.Body = extractBody(normalized)

	for k, v := range defaultHeaders {
		if _, exists := d.Headers[k]; !exists {
			d.Headers[k] = v
		}
	}

	return d, nil
}

// normalize joins line continuations and collapses whitespace runs so that
// flag/value token boundaries survive multi-line input.
func normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\\\n", " ")
	s = strings.ReplaceAll(s, "\\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return whitespaceRun.ReplaceAllString(s, " ")
}

func extractURL(s string) (string, bool) {
	if m := urlSingle.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if m := urlDouble.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// extractCookie prefers the dedicated -b flag over a cookie-bearing header.
// A missing cookie is not an error here; downstream calls that require the
// credential check for it themselves.
func extractCookie(s string) (string, bool) {
	for _, re := range []*regexp.Regexp{cookieFlagSingle, cookieFlagDouble, cookieHeaderSingle, cookieHeaderDouble} {
		if m := re.FindStringSubmatch(s); m != nil {
			return unescapeQuotes(m[1]), true
		}
	}
	return "", false
}

// extractHeaders collects -H flag headers with lower-cased keys, skipping the
// deny-list. First occurrence of a key wins.
func extractHeaders(s string, into map[string]string) {
	for _, m := range headerFlag.FindAllStringSubmatch(s, -1) {
		key, value := m[1], m[2]
		if key == "" {
			key, value = m[3], m[4]
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if deniedHeaders[key] {
			continue
		}
		if _, exists := into[key]; exists {
			continue
		}
		into[key] = strings.TrimSpace(value)
	}
}

// extractBody parses the data flag payload as JSON, falling back to
// regex extraction of the known identifier fields. It never fails.
func extractBody(s string) map[string]any {
	var payload string
	if m := dataSingle.FindStringSubmatch(s); m != nil {
		payload = m[1]
	} else if m := dataDouble.FindStringSubmatch(s); m != nil {
		payload = m[1]
	}

	if payload != "" {
		payload = unescapeQuotes(payload)
		if !strings.HasPrefix(strings.TrimSpace(payload), "{") {
			payload = "{" + payload + "}"
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(payload), &body); err == nil {
			return body
		}
	}

	return fallbackBody(s)
}

// fallbackBody reconstructs the minimal request document field by field.
// Absent matches map to null so the shape matches the strict path.
func fallbackBody(s string) map[string]any {
	var reqID any
	if m := reqIDField.FindStringSubmatch(s); m != nil {
		reqID = m[1]
	}

	var companyID any
	if m := companyField.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			companyID = float64(n)
		}
	}

	var userID any
	if m := userIDField.FindStringSubmatch(s); m != nil {
		userID = m[1]
	}

	var userName any
	if m := userNameField.FindStringSubmatch(s); m != nil {
		userName = m[1]
	}

	return map[string]any{
		"requirementId":       reqID,
		"requirementGroupId":  reqID,
		"newCandidatesSearch": false,
		"saveSession":         true,
		"miscellaneousInfo": map[string]any{
			"companyId":   companyID,
			"rdxUserId":   userID,
			"rdxUserName": userName,
		},
	}
}

func unescapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\'`, `'`)
}

// Clone returns a copy with an independent header map, so per-call header
// overrides (such as a fresh correlation id) never touch the original.
func (d *Descriptor) Clone() *Descriptor {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		headers[k] = v
	}
	return &Descriptor{
		URL:     d.URL,
		Headers: headers,
		Body:    d.Body,
	}
}

// HasCredential reports whether a session cookie was extracted.
func (d *Descriptor) HasCredential() bool {
	return d.Headers["cookie"] != ""
}

// IsLite reports whether the template targets the rdxLite listing variant,
// which selects the lite detail endpoint and page names.
func (d *Descriptor) IsLite() bool {
	return strings.Contains(d.URL, "/rdxLite/")
}

// RequirementID returns the requirement identifier from the body as a
// string, or "" when absent.
func (d *Descriptor) RequirementID() string {
	switch v := d.Body["requirementId"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// MiscInfo returns the miscellaneousInfo document from the body, or an empty
// map when absent.
func (d *Descriptor) MiscInfo() map[string]any {
	if m, ok := d.Body["miscellaneousInfo"].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// CompanyID returns the raw companyId value from miscellaneousInfo.
func (d *Descriptor) CompanyID() any {
	return d.MiscInfo()["companyId"]
}

// RdxUserID returns the raw rdxUserId value from miscellaneousInfo.
func (d *Descriptor) RdxUserID() any {
	return d.MiscInfo()["rdxUserId"]
}

// RdxUserName returns the raw rdxUserName value from miscellaneousInfo.
func (d *Descriptor) RdxUserName() any {
	return d.MiscInfo()["rdxUserName"]
}

// CompanyIDString returns companyId rendered for URL path segments.
func (d *Descriptor) CompanyIDString() string {
	return formatValue(d.CompanyID())
}

// RdxUserIDString returns rdxUserId rendered for URL path segments.
func (d *Descriptor) RdxUserIDString() string {
	return formatValue(d.RdxUserID())
}

// formatValue renders an identifier that JSON decoding may have produced as
// either a string or a number.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatInt(int64(x), 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

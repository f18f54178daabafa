// Package normalize trims and case-folds user supplied values before they
// are validated or stored.
package normalize

import "strings"

// Email lowercases and trims an email address.
func Email(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Name trims a display name and keeps its case.
func Name(s string) string { return strings.TrimSpace(s) }

// Status lowercases and trims a status value.
func Status(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Role lowercases and trims a role name.
func Role(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Stage lowercases and trims a stage name.
func Stage(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// QueryParam trims a query string value.
func QueryParam(s string) string { return strings.TrimSpace(s) }

// FilterID trims an id filter; "all" means no filter and returns "".
func FilterID(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return ""
	}
	return s
}

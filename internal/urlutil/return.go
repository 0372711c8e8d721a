package urlutil

import (
	"net/url"
	"strings"
)

// ReturnParam is the query parameter carrying the originally requested view
const ReturnParam = "return"

// LocalPath reports whether raw is a path on this origin and returns it
// cleaned of scheme and host. Absolute URLs, protocol-relative URLs and
// backslash tricks are rejected so a return target cannot leave the shell.
func LocalPath(raw string) (string, bool) {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "", false
	}
	return u.RequestURI(), true
}

// WithReturn appends the return parameter to path. Non-local targets are
// dropped.
func WithReturn(path, returnTo string) string {
	target, ok := LocalPath(returnTo)
	if !ok {
		return path
	}
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set(ReturnParam, target)
	u.RawQuery = q.Encode()
	return u.String()
}

// ReturnTarget extracts a local return target from a request URI
func ReturnTarget(requestURI string) (string, bool) {
	u, err := url.Parse(requestURI)
	if err != nil {
		return "", false
	}
	return LocalPath(u.Query().Get(ReturnParam))
}

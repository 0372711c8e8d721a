package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Endpoint resolves an API path against base. The base path is kept as a
// prefix and a query on ref is carried over. ref must be a path: an
// absolute URL is rejected so requests never leave the configured host.
func Endpoint(base, ref string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if r.IsAbs() || r.Host != "" {
		return "", fmt.Errorf("endpoint %q must be a path", ref)
	}

	u.Path = path.Join("/", u.Path, r.Path)
	if strings.HasSuffix(r.Path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawPath = ""
	u.RawQuery = r.RawQuery
	u.Fragment = ""
	return u.String(), nil
}

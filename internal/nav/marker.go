package nav

import (
	"net/url"
	"slices"
	"strings"
)

// Query parameters an authorization-code redirect appends to the location
var queryMarkerKeys = []string{"code", "state", "error", "error_description"}

// Fragment parameters an implicit-flow redirect appends to the location
var fragmentMarkerKeys = []string{
	"access_token",
	"refresh_token",
	"expires_in",
	"expires_at",
	"token_type",
	"provider_token",
	"provider_refresh_token",
	"type",
	"error",
	"error_code",
	"error_description",
}

// Marker is the transient artifact an identity provider leaves on the
// location after an external sign-in redirect
type Marker struct {
	// Authorization code flow
	Code  string
	State string

	// Implicit flow
	AccessToken  string
	RefreshToken string
	ExpiresIn    string
	ExpiresAt    string
	TokenType    string

	Error            string
	ErrorDescription string

	// InFragment is set when the marker was carried in the URL fragment
	InFragment bool
}

// HasCredential reports whether the marker carries something to exchange
func (m Marker) HasCredential() bool {
	return m.Code != "" || m.AccessToken != ""
}

// DetectMarker looks for a provider redirect marker in u
func DetectMarker(u *url.URL) (Marker, bool) {
	if u == nil {
		return Marker{}, false
	}

	if frag := fragmentValues(u); frag != nil && hasAny(frag, fragmentMarkerKeys) {
		return Marker{
			AccessToken:      frag.Get("access_token"),
			RefreshToken:     frag.Get("refresh_token"),
			ExpiresIn:        frag.Get("expires_in"),
			ExpiresAt:        frag.Get("expires_at"),
			TokenType:        frag.Get("token_type"),
			Error:            frag.Get("error"),
			ErrorDescription: frag.Get("error_description"),
			InFragment:       true,
		}, true
	}

	q := u.Query()
	if q.Get("code") != "" || q.Get("error") != "" {
		return Marker{
			Code:             q.Get("code"),
			State:            q.Get("state"),
			Error:            q.Get("error"),
			ErrorDescription: q.Get("error_description"),
		}, true
	}

	return Marker{}, false
}

// StripMarker returns a copy of u without any marker parameters.
// Unrelated query parameters and fragments are preserved.
func StripMarker(u *url.URL) *url.URL {
	out := *u

	q := u.Query()
	if q.Get("code") != "" || q.Get("error") != "" {
		out.RawQuery = dropKeys(u.RawQuery, queryMarkerKeys)
	}

	if frag := fragmentValues(u); frag != nil && hasAny(frag, fragmentMarkerKeys) {
		raw := dropKeys(u.EscapedFragment(), fragmentMarkerKeys)
		out.Fragment, out.RawFragment = "", ""
		if f, err := url.PathUnescape(raw); err == nil {
			out.Fragment, out.RawFragment = f, raw
		}
	}

	return &out
}

// dropKeys removes the pairs named by keys from a raw query, leaving the
// remaining pairs in their original order and encoding
func dropKeys(rawQuery string, keys []string) string {
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		name, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if slices.Contains(keys, name) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

func fragmentValues(u *url.URL) url.Values {
	if u.Fragment == "" || !strings.Contains(u.Fragment, "=") {
		return nil
	}
	v, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return nil
	}
	return v
}

func hasAny(v url.Values, keys []string) bool {
	for _, k := range keys {
		if _, ok := v[k]; ok {
			return true
		}
	}
	return false
}

package nav

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDetectMarker(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantFound bool
		want      Marker
	}{
		{
			name:      "plain location",
			raw:       "http://127.0.0.1:5173/me",
			wantFound: false,
		},
		{
			name:      "authorization code",
			raw:       "http://127.0.0.1:5173/auth/callback?code=abc&state=xyz",
			wantFound: true,
			want:      Marker{Code: "abc", State: "xyz"},
		},
		{
			name:      "provider error in query",
			raw:       "http://127.0.0.1:5173/?error=access_denied&error_description=nope",
			wantFound: true,
			want:      Marker{Error: "access_denied", ErrorDescription: "nope"},
		},
		{
			name:      "implicit fragment",
			raw:       "http://127.0.0.1:5173/me#access_token=jwt&refresh_token=r&expires_in=3600&token_type=bearer&type=signup",
			wantFound: true,
			want: Marker{
				AccessToken:  "jwt",
				RefreshToken: "r",
				ExpiresIn:    "3600",
				TokenType:    "bearer",
				InFragment:   true,
			},
		},
		{
			name:      "anchor fragment is not a marker",
			raw:       "http://127.0.0.1:5173/me#section",
			wantFound: false,
		},
		{
			name:      "unrelated query is not a marker",
			raw:       "http://127.0.0.1:5173/me?tab=posts",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := DetectMarker(mustParse(t, tt.raw))
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	_, found := DetectMarker(nil)
	assert.False(t, found)
}

func TestStripMarker(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "code and state removed",
			raw:  "http://127.0.0.1:5173/me?code=abc&state=xyz",
			want: "http://127.0.0.1:5173/me",
		},
		{
			name: "unrelated query kept",
			raw:  "http://127.0.0.1:5173/me?code=abc&state=xyz&tab=posts",
			want: "http://127.0.0.1:5173/me?tab=posts",
		},
		{
			name: "implicit fragment removed",
			raw:  "http://127.0.0.1:5173/me#access_token=jwt&expires_in=3600&token_type=bearer",
			want: "http://127.0.0.1:5173/me",
		},
		{
			name: "kept parameters keep their order and encoding",
			raw:  "http://127.0.0.1:5173/me?tab=posts&code=abc&q=a%20b&state=xyz&after=2",
			want: "http://127.0.0.1:5173/me?tab=posts&q=a%20b&after=2",
		},
		{
			name: "kept fragment parameters keep their order",
			raw:  "http://127.0.0.1:5173/me#view=grid&access_token=jwt&expires_in=3600&anchor=top",
			want: "http://127.0.0.1:5173/me#view=grid&anchor=top",
		},
		{
			name: "no marker untouched",
			raw:  "http://127.0.0.1:5173/me?tab=posts#section",
			want: "http://127.0.0.1:5173/me?tab=posts#section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := mustParse(t, tt.raw)
			got := StripMarker(in)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, tt.raw, in.String(), "input must not be modified")

			_, found := DetectMarker(got)
			assert.False(t, found)
		})
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory(mustParse(t, "http://127.0.0.1:5173/login?code=abc"))
	assert.Equal(t, 1, h.Len())

	var changes []Change
	cancel := h.Subscribe(func(c Change) { changes = append(changes, c) })

	require.NoError(t, h.Replace("/login"))
	assert.Equal(t, 1, h.Len(), "replace must not add an entry")
	cur := h.Current()
	assert.Equal(t, "http://127.0.0.1:5173/login", cur.String())

	require.NoError(t, h.Push("/me"))
	assert.Equal(t, 2, h.Len())
	cur = h.Current()
	assert.Equal(t, "/me", cur.Path)
	assert.Equal(t, "127.0.0.1:5173", cur.Host)

	cancel()
	cancel()
	require.NoError(t, h.Push("/"))

	require.Len(t, changes, 2)
	assert.Equal(t, ChangeReplace, changes[0].Kind)
	assert.Equal(t, ChangePush, changes[1].Kind)
	assert.Equal(t, "/me", changes[1].Location.Path)
}

func TestHistory_SubscribersInRegistrationOrder(t *testing.T) {
	h := NewHistory(nil)

	var calls []int
	cancels := make([]func(), 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		cancels = append(cancels, h.Subscribe(func(Change) { calls = append(calls, i) }))
	}
	cancels[2]()

	require.NoError(t, h.Push("/me"))
	require.NoError(t, h.Replace("/login"))

	assert.Equal(t, []int{0, 1, 3, 4, 0, 1, 3, 4}, calls)
}

func TestHistory_DefaultLocation(t *testing.T) {
	h := NewHistory(nil)
	cur := h.Current()
	assert.Equal(t, "/", cur.Path)
}

package cookie

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/leansocial/shell/internal/log"
)

// Cookie names used by the shell
const (
	CSRFCookie  = "leansocial_csrf"
	FlashCookie = "leansocial_flash"
)

// SetCSRF sets the CSRF token cookie checked against submitted forms.
// secure should follow the scheme the shell is served on.
func SetCSRF(w http.ResponseWriter, value string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// SetFlash stores a one-shot message for the next page render
func SetFlash(w http.ResponseWriter, message string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(message)),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   60,
	})
	log.LogTraceWithFields("cookie", "Flash message set", nil)
}

// PopFlash returns the pending flash message, if any, and clears it
func PopFlash(w http.ResponseWriter, r *http.Request) string {
	value, err := Get(r, FlashCookie)
	if err != nil || value == "" {
		return ""
	}
	Clear(w, FlashCookie)
	msg, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return ""
	}
	return string(msg)
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetCSRF retrieves the CSRF cookie value
func GetCSRF(r *http.Request) (string, error) {
	return Get(r, CSRFCookie)
}

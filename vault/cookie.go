// Package vault provides CredentialVault implementations beyond the in-memory
// default. The cookie vault binds the credential pair to an HTTP exchange the
// way browser clients persist it.
package vault

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-session/core"
)

// CookieConfig controls the attributes stamped on every credential cookie.
type CookieConfig struct {
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// CookieVault stores the pair as two cookies on a single HTTP exchange. It is
// request-scoped: construct one per request with the inbound request and the
// outbound writer. Reads consult writes made earlier in the same exchange
// before falling back to the request cookies. Using a vault outside its
// exchange is a storage error.
type CookieVault struct {
	request *http.Request
	writer  http.ResponseWriter
	config  CookieConfig
	nowFn   func() time.Time

	// written overlays same-exchange writes over the inbound cookie jar.
	written map[string]*http.Cookie
}

func NewCookieVault(w http.ResponseWriter, r *http.Request, cfg CookieConfig) *CookieVault {
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = "/"
	}
	return &CookieVault{
		request: r,
		writer:  w,
		config:  cfg,
		nowFn:   func() time.Time { return time.Now().UTC() },
		written: make(map[string]*http.Cookie),
	}
}

func (v *CookieVault) Set(_ context.Context, pair core.TokenPair, ttls core.TokenTTLs) error {
	if err := v.scopeErr(); err != nil {
		return err
	}
	if pair.Empty() {
		return core.NewStorageError("vault: token pair is required", nil)
	}
	now := v.nowFn()
	v.write(core.TokenNameAccess, pair.AccessToken, cookieExpiry(now, pair.AccessExpiresAt, ttls.Access))
	v.write(core.TokenNameRefresh, pair.RefreshToken, cookieExpiry(now, pair.RefreshExpiresAt, ttls.Refresh))
	return nil
}

func (v *CookieVault) Get(_ context.Context, name string) (string, bool, error) {
	if err := v.scopeErr(); err != nil {
		return "", false, err
	}
	name = strings.TrimSpace(name)

	if cookie, ok := v.written[name]; ok {
		if cookie.MaxAge < 0 || strings.TrimSpace(cookie.Value) == "" {
			return "", false, nil
		}
		if !cookie.Expires.IsZero() && !cookie.Expires.After(v.nowFn()) {
			return "", false, nil
		}
		return cookie.Value, true, nil
	}

	cookie, err := v.request.Cookie(name)
	if err != nil {
		if err == http.ErrNoCookie {
			return "", false, nil
		}
		return "", false, core.NewStorageError(fmt.Sprintf("vault: read cookie %q", name), err)
	}
	if strings.TrimSpace(cookie.Value) == "" {
		return "", false, nil
	}
	return cookie.Value, true, nil
}

// Clear expires both cookies. Both-or-neither: a partial clear cannot happen
// because both writes target the same response.
func (v *CookieVault) Clear(_ context.Context) error {
	if err := v.scopeErr(); err != nil {
		return err
	}
	v.expire(core.TokenNameAccess)
	v.expire(core.TokenNameRefresh)
	return nil
}

func (v *CookieVault) scopeErr() error {
	if v == nil || v.request == nil || v.writer == nil {
		return core.NewStorageError("vault: cookie vault used outside its request scope", nil)
	}
	return nil
}

func (v *CookieVault) write(name string, value string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     v.config.Path,
		Domain:   v.config.Domain,
		Secure:   v.config.Secure,
		HttpOnly: v.config.HTTPOnly,
		SameSite: v.config.SameSite,
		Expires:  expires,
	}
	if !expires.IsZero() {
		cookie.MaxAge = int(time.Until(expires).Seconds())
	}
	v.written[name] = cookie
	http.SetCookie(v.writer, cookie)
}

func (v *CookieVault) expire(name string) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     v.config.Path,
		Domain:   v.config.Domain,
		Secure:   v.config.Secure,
		HttpOnly: v.config.HTTPOnly,
		SameSite: v.config.SameSite,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	}
	v.written[name] = cookie
	http.SetCookie(v.writer, cookie)
}

func cookieExpiry(now time.Time, absolute time.Time, ttl time.Duration) time.Time {
	if !absolute.IsZero() {
		return absolute.UTC()
	}
	if ttl > 0 {
		return now.Add(ttl)
	}
	return time.Time{}
}

var _ core.CredentialVault = (*CookieVault)(nil)

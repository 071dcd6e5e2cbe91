// Package session keeps the per-browser role, login and institution
// selection in a signed cookie.
package session

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/storacha/certifier/internal/config"
)

var log = logging.Logger("session")

const Name = "certifier"

type Role string

const (
	RoleInstitute Role = "institute"
	RoleVerifier  Role = "verifier"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleInstitute:
		return RoleInstitute, nil
	case RoleVerifier:
		return RoleVerifier, nil
	}
	return "", ErrUnknownRole
}

var (
	ErrUnknownRole        = errors.New("role must be institute or verifier")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// State is what a session remembers between requests.
type State struct {
	Role        Role   `json:"role,omitempty"`
	LoggedIn    bool   `json:"logged_in"`
	Email       string `json:"email,omitempty"`
	Institution string `json:"institution,omitempty"`
}

// Institute reports whether the session may use institute endpoints.
func (s State) Institute() bool {
	return s.Role == RoleInstitute && s.LoggedIn
}

// Middleware installs the cookie store sessions are kept in.
func Middleware(key []byte) echo.MiddlewareFunc {
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 1 week
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return session.Middleware(store)
}

// Load returns the state of the request's session. A missing or unreadable
// cookie yields the zero state.
func Load(c echo.Context) State {
	sess, err := session.Get(Name, c)
	if err != nil {
		log.Debugw("Discarding unreadable session", "error", err)
		return State{}
	}
	var st State
	if v, ok := sess.Values["role"].(string); ok {
		st.Role = Role(v)
	}
	st.LoggedIn, _ = sess.Values["logged_in"].(bool)
	st.Email, _ = sess.Values["email"].(string)
	st.Institution, _ = sess.Values["institution"].(string)
	return st
}

// Save writes st to the response cookie.
func Save(c echo.Context, st State) error {
	sess, _ := session.Get(Name, c)
	if sess == nil {
		return errors.New("session middleware not installed")
	}
	sess.Values["role"] = string(st.Role)
	sess.Values["logged_in"] = st.LoggedIn
	sess.Values["email"] = st.Email
	sess.Values["institution"] = st.Institution
	return sess.Save(c.Request(), c.Response())
}

// Clear expires the session cookie.
func Clear(c echo.Context) error {
	sess, _ := session.Get(Name, c)
	if sess == nil {
		return nil
	}
	sess.Values = make(map[interface{}]interface{})
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// RequireInstitute rejects requests from sessions that are not logged in
// with the institute role.
func RequireInstitute(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		st := Load(c)
		if !st.LoggedIn {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "login required"})
		}
		if st.Role != RoleInstitute {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "institute role required"})
		}
		return next(c)
	}
}

// Authenticator checks institute logins against the configured account.
type Authenticator struct {
	email string
	hash  []byte
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{
		email: strings.ToLower(strings.TrimSpace(cfg.Email)),
		hash:  []byte(cfg.PasswordHash),
	}
}

func (a *Authenticator) Authenticate(email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(a.email)) == 1
	// always run bcrypt so a wrong email costs as much as a wrong password
	pwErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !emailOK || pwErr != nil || a.email == "" {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash to configure as auth.password_hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

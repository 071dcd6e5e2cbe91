package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/storacha/certifier/internal/config"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Institute ")
	require.NoError(t, err)
	require.Equal(t, RoleInstitute, r)

	_, err = ParseRole("admin")
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestAuthenticator(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	a := NewAuthenticator(config.AuthConfig{Email: "Admin@Acme.edu", PasswordHash: hash})

	require.NoError(t, a.Authenticate("admin@acme.edu", "hunter2"))
	require.ErrorIs(t, a.Authenticate("admin@acme.edu", "wrong"), ErrInvalidCredentials)
	require.ErrorIs(t, a.Authenticate("other@acme.edu", "hunter2"), ErrInvalidCredentials)

	empty := NewAuthenticator(config.AuthConfig{})
	require.ErrorIs(t, empty.Authenticate("", ""), ErrInvalidCredentials)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Use(Middleware([]byte(testKey)))
	e.POST("/login", func(c echo.Context) error {
		if err := Save(c, State{Role: RoleInstitute, LoggedIn: true, Email: "admin@acme.edu"}); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
	e.POST("/verifier", func(c echo.Context) error {
		if err := Save(c, State{Role: RoleVerifier}); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/private", func(c echo.Context) error {
		return c.JSON(http.StatusOK, Load(c))
	}, RequireInstitute)
	return e
}

func TestRequireInstitute(t *testing.T) {
	e := newEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verifier", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	// verifier role without login is still unauthorized
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"logged_in":true`)
}

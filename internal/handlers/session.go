package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/storacha/certifier/internal/issuer"
	"github.com/storacha/certifier/internal/session"
)

type RoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type InstitutionSelectRequest struct {
	Institution string `json:"institution" validate:"required"`
}

// SelectRole picks the institute or verifier role. Changing role logs out.
func (h *Handlers) SelectRole(c echo.Context) error {
	var req RoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	role, err := session.ParseRole(req.Role)
	if err != nil {
		return writeError(c, err)
	}

	st := session.Load(c)
	if st.Role != role {
		st = session.State{Role: role}
	}
	if err := session.Save(c, st); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := h.auth.Authenticate(req.Email, req.Password); err != nil {
		log.Warnw("Rejected login", "email", req.Email)
		return writeError(c, err)
	}

	st := session.Load(c)
	st.Role = session.RoleInstitute
	st.LoggedIn = true
	st.Email = req.Email
	if err := session.Save(c, st); err != nil {
		return writeError(c, err)
	}
	log.Infow("Institute logged in", "email", req.Email)
	return c.JSON(http.StatusOK, st)
}

// SelectInstitution sets the institution new certificates default to.
func (h *Handlers) SelectInstitution(c echo.Context) error {
	var req InstitutionSelectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	st := session.Load(c)
	st.Institution = issuer.NormalizeInstitution(req.Institution)
	if err := session.Save(c, st); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handlers) Logout(c echo.Context) error {
	if err := session.Clear(c); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

package handlers

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/storacha/certifier/internal/store"
)

type InstitutionRequest struct {
	Name string `json:"name" validate:"required"`
}

type InstitutionResponse struct {
	Name string `json:"name"`
}

type ListInstitutionsResponse struct {
	Institutions []store.Institution `json:"institutions"`
}

func (h *Handlers) ListInstitutions(c echo.Context) error {
	list, err := h.issuer.Institutions(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if list == nil {
		list = []store.Institution{}
	}
	return c.JSON(http.StatusOK, ListInstitutionsResponse{Institutions: list})
}

func (h *Handlers) AddInstitution(c echo.Context) error {
	var req InstitutionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	name, err := h.issuer.AddInstitution(c.Request().Context(), req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, InstitutionResponse{Name: name})
}

func (h *Handlers) RenameInstitution(c echo.Context) error {
	var req InstitutionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	name, err := h.issuer.RenameInstitution(c.Request().Context(), param(c, "name"), req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, InstitutionResponse{Name: name})
}

func (h *Handlers) RemoveInstitution(c echo.Context) error {
	if err := h.issuer.RemoveInstitution(c.Request().Context(), param(c, "name")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// param returns an unescaped path parameter. Institution names may contain
// spaces.
func param(c echo.Context, name string) string {
	v, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return c.Param(name)
	}
	return v
}

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/storacha/certifier/internal/attest"
	"github.com/storacha/certifier/internal/certificate"
	"github.com/storacha/certifier/internal/issuer"
	"github.com/storacha/certifier/internal/verifier"
)

// VerifyResponse carries a verification result and the receipt signed for it.
type VerifyResponse struct {
	Result  *verifier.Result `json:"result"`
	Receipt *attest.Receipt  `json:"receipt"`
}

func (h *Handlers) VerifyFingerprint(c echo.Context) error {
	res, err := h.verifier.VerifyFingerprint(c.Request().Context(), c.Param("fingerprint"))
	if err != nil {
		return writeError(c, err)
	}
	return h.respond(c, res)
}

// VerifyPayload checks a QR payload submitted as JSON. A payload with a
// missing field or a malformed certificate_id is rejected before the ledger
// is consulted.
func (h *Handlers) VerifyPayload(c echo.Context) error {
	var payload certificate.Payload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	payload.Fingerprint = certificate.NormalizeFingerprint(payload.Fingerprint)
	if err := payload.Validate(); err != nil {
		return writeError(c, err)
	}
	res, err := h.verifier.VerifyPayload(c.Request().Context(), payload)
	if err != nil {
		return writeError(c, err)
	}
	return h.respond(c, res)
}

// VerifyDocument checks the QR code embedded in an uploaded PDF or image.
func (h *Handlers) VerifyDocument(c echo.Context) error {
	data, _, err := readUpload(c)
	if err != nil {
		return writeError(c, err)
	}
	if len(data) == 0 {
		return writeError(c, issuer.ErrInvalidRequest)
	}
	res, err := h.verifier.VerifyDocument(c.Request().Context(), data)
	if err != nil {
		return writeError(c, err)
	}
	return h.respond(c, res)
}

func (h *Handlers) respond(c echo.Context, res *verifier.Result) error {
	receipt, err := h.attestor.Sign(res)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, VerifyResponse{Result: res, Receipt: receipt})
}

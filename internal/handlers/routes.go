package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/storacha/certifier/internal/session"
)

// Register mounts the API on e. Session middleware must already be installed.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/health", h.HealthCheck)
	e.GET("/.well-known/did.json", h.DIDDocument)

	sess := e.Group("/session")
	sess.POST("/role", h.SelectRole)
	sess.POST("/login", h.Login)
	sess.POST("/institution", h.SelectInstitution)
	sess.POST("/logout", h.Logout)

	v1 := e.Group("/api/v1")
	v1.POST("/fingerprint", h.Fingerprint)
	v1.POST("/verify/payload", h.VerifyPayload)
	v1.POST("/verify/document", h.VerifyDocument)
	v1.GET("/verify/:fingerprint", h.VerifyFingerprint)

	certs := v1.Group("/certificates", session.RequireInstitute)
	certs.GET("", h.ListCertificates)
	certs.POST("", h.IssueCertificate)
	certs.POST("/bulk", h.IssueBulk)
	certs.DELETE("", h.RevokeAllCertificates)
	certs.DELETE("/:fingerprint", h.RevokeCertificate)

	insts := v1.Group("/institutions", session.RequireInstitute)
	insts.GET("", h.ListInstitutions)
	insts.POST("", h.AddInstitution)
	insts.PUT("/:name", h.RenameInstitution)
	insts.DELETE("/:name", h.RemoveInstitution)
}

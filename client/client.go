// Package client is a Go client for the certifier HTTP API.
//
// The client keeps the session cookie between calls, so Login must be called
// before any of the institute methods.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/storacha/certifier/internal/handlers"
	"github.com/storacha/certifier/internal/issuer"
	"github.com/storacha/certifier/internal/store"
)

// Client represents a certifier API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. A client without a cookie jar
// cannot hold a login.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets a custom user agent.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// New creates a new certifier API client.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Jar:     jar,
		},
		baseURL:   strings.TrimSuffix(u.String(), "/"),
		userAgent: "certifier-client/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HealthCheck checks if the certifier service is healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// DIDDocument returns the document publishing the receipt signing key.
func (c *Client) DIDDocument(ctx context.Context) (*handlers.DIDDocumentResponse, error) {
	var doc handlers.DIDDocumentResponse
	if err := c.doJSON(ctx, http.MethodGet, "/.well-known/did.json", nil, &doc); err != nil {
		return nil, fmt.Errorf("fetching did document: %w", err)
	}
	return &doc, nil
}

// Login authenticates as the institute.
func (c *Client) Login(ctx context.Context, email, password string) error {
	req := handlers.LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/session/login", req, nil); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	return nil
}

// SelectRole sets the session role to institute or verifier.
func (c *Client) SelectRole(ctx context.Context, role string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/session/role", handlers.RoleRequest{Role: role}, nil); err != nil {
		return fmt.Errorf("selecting role: %w", err)
	}
	return nil
}

// SelectInstitution sets the institution certificates default to.
func (c *Client) SelectInstitution(ctx context.Context, name string) error {
	req := handlers.InstitutionSelectRequest{Institution: name}
	if err := c.doJSON(ctx, http.MethodPost, "/session/institution", req, nil); err != nil {
		return fmt.Errorf("selecting institution: %w", err)
	}
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/session/logout", nil, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// Fingerprint asks the service to compute the fingerprint of fields.
func (c *Client) Fingerprint(ctx context.Context, req handlers.FingerprintRequest) (*handlers.FingerprintResponse, error) {
	var resp handlers.FingerprintResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/fingerprint", req, &resp); err != nil {
		return nil, fmt.Errorf("computing fingerprint: %w", err)
	}
	return &resp, nil
}

// Verify checks a fingerprint against the ledger.
func (c *Client) Verify(ctx context.Context, fingerprint string) (*handlers.VerifyResponse, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("fingerprint cannot be empty")
	}
	var resp handlers.VerifyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/verify/"+fingerprint, nil, &resp); err != nil {
		return nil, fmt.Errorf("verifying certificate: %w", err)
	}
	return &resp, nil
}

// VerifyPayload checks a decoded QR payload, given as its JSON encoding.
func (c *Client) VerifyPayload(ctx context.Context, payload json.RawMessage) (*handlers.VerifyResponse, error) {
	var resp handlers.VerifyResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/verify/payload", payload, &resp); err != nil {
		return nil, fmt.Errorf("verifying payload: %w", err)
	}
	return &resp, nil
}

// VerifyDocument uploads a certificate PDF or image for verification.
func (c *Client) VerifyDocument(ctx context.Context, filename string, document io.Reader) (*handlers.VerifyResponse, error) {
	var resp handlers.VerifyResponse
	if err := c.upload(ctx, "/api/v1/verify/document", filename, document, nil, &resp); err != nil {
		return nil, fmt.Errorf("verifying document: %w", err)
	}
	return &resp, nil
}

// Issue issues one certificate.
func (c *Client) Issue(ctx context.Context, req handlers.IssueRequest) (*issuer.Issued, error) {
	var resp issuer.Issued
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/certificates", req, &resp); err != nil {
		return nil, fmt.Errorf("issuing certificate: %w", err)
	}
	return &resp, nil
}

// IssueBulk uploads a spreadsheet or document of students. An empty
// institution uses the one selected for the session.
func (c *Client) IssueBulk(ctx context.Context, filename string, data io.Reader, institution string) (*issuer.BatchResult, error) {
	var fields map[string]string
	if institution != "" {
		fields = map[string]string{"institution": institution}
	}
	var resp issuer.BatchResult
	if err := c.upload(ctx, "/api/v1/certificates/bulk", filename, data, fields, &resp); err != nil {
		return nil, fmt.Errorf("issuing batch: %w", err)
	}
	return &resp, nil
}

func (c *Client) ListCertificates(ctx context.Context) ([]store.Certificate, error) {
	var resp handlers.ListCertificatesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/certificates", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}
	return resp.Certificates, nil
}

func (c *Client) Revoke(ctx context.Context, fingerprint string) (*issuer.Revocation, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("fingerprint cannot be empty")
	}
	var resp issuer.Revocation
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/certificates/"+fingerprint, nil, &resp); err != nil {
		return nil, fmt.Errorf("revoking certificate: %w", err)
	}
	return &resp, nil
}

// RevokeAll revokes every certificate. When the server stops early the
// certificates it did revoke are returned alongside the error.
func (c *Client) RevokeAll(ctx context.Context) ([]issuer.Revocation, error) {
	var resp handlers.RevokeAllResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/certificates", nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && json.Unmarshal(apiErr.body, &resp) == nil {
			return resp.Revoked, fmt.Errorf("revoking certificates: %w", err)
		}
		return nil, fmt.Errorf("revoking certificates: %w", err)
	}
	return resp.Revoked, nil
}

func (c *Client) ListInstitutions(ctx context.Context) ([]store.Institution, error) {
	var resp handlers.ListInstitutionsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/institutions", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing institutions: %w", err)
	}
	return resp.Institutions, nil
}

// AddInstitution registers an institution and returns its normalized name.
func (c *Client) AddInstitution(ctx context.Context, name string) (string, error) {
	var resp handlers.InstitutionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/institutions", handlers.InstitutionRequest{Name: name}, &resp); err != nil {
		return "", fmt.Errorf("adding institution: %w", err)
	}
	return resp.Name, nil
}

func (c *Client) RenameInstitution(ctx context.Context, from, to string) (string, error) {
	var resp handlers.InstitutionResponse
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/institutions/"+from, handlers.InstitutionRequest{Name: to}, &resp); err != nil {
		return "", fmt.Errorf("renaming institution: %w", err)
	}
	return resp.Name, nil
}

func (c *Client) RemoveInstitution(ctx context.Context, name string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/institutions/"+name, nil, nil); err != nil {
		return fmt.Errorf("removing institution: %w", err)
	}
	return nil
}

// doJSON sends body as JSON and decodes a successful response into result.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

func (c *Client) upload(ctx context.Context, endpoint, filename string, data io.Reader, fields map[string]string, result interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("writing form field: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", path.Base(filename))
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return fmt.Errorf("writing form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// newRequest creates a new HTTP request with common headers.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = path.Join(u.Path, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// handleErrorResponse processes error responses from the API.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error,
			body:       body,
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

// APIError represents an error response from the certifier API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`

	body []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("certifier API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("certifier API error (%d)", e.StatusCode)
}

// IsNotFound returns true if the error is a 404 Not Found.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsBadRequest returns true if the error is a 400 Bad Request.
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

// IsUnauthorized returns true if the error is a 401 Unauthorized.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsForbidden returns true if the error is a 403 Forbidden.
func (e *APIError) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

// IsConflict returns true if the error is a 409 Conflict.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

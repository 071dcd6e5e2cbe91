package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/storacha/certifier/internal/handlers"
	"github.com/storacha/certifier/internal/issuer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{
			name:    "valid URL",
			baseURL: "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "empty URL",
			baseURL: "",
			wantErr: true,
		},
		{
			name:    "invalid URL",
			baseURL: "://invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && client == nil {
				t.Error("New() returned nil client")
			}
		})
	}
}

func TestClientWithOptions(t *testing.T) {
	customClient := &http.Client{Timeout: 5 * time.Second}
	userAgent := "test-client/1.0"

	client, err := New("http://localhost:8080",
		WithHTTPClient(customClient),
		WithUserAgent(userAgent),
		WithTimeout(10*time.Second),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.httpClient != customClient {
		t.Error("WithHTTPClient() did not set custom client")
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Error("WithTimeout() did not set timeout")
	}
	if client.userAgent != userAgent {
		t.Error("WithUserAgent() did not set custom user agent")
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{
			name:       "healthy service",
			statusCode: http.StatusOK,
			wantErr:    false,
		},
		{
			name:       "unhealthy service",
			statusCode: http.StatusInternalServerError,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("Expected path /health, got %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client, err := New(server.URL)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			err = client.HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoginKeepsSessionCookie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/login":
			var req handlers.LoginRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
			if req.Email != "registrar@acme.edu" {
				t.Errorf("Expected email registrar@acme.edu, got %s", req.Email)
			}
			http.SetCookie(w, &http.Cookie{Name: "certifier", Value: "logged-in", Path: "/"})
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"role":"institute","logged_in":true}`))
		case "/api/v1/certificates":
			if c, err := r.Cookie("certifier"); err != nil || c.Value != "logged-in" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"login required"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"certificates":[{"fingerprint":"abc","registration_no":"REG001"}]}`))
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	_, err = client.ListCertificates(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() {
		t.Fatalf("ListCertificates() before login error = %v, want unauthorized", err)
	}

	if err := client.Login(ctx, "registrar@acme.edu", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	certs, err := client.ListCertificates(ctx)
	if err != nil {
		t.Fatalf("ListCertificates() error = %v", err)
	}
	if len(certs) != 1 || certs[0].RegistrationNo != "REG001" {
		t.Errorf("ListCertificates() = %+v", certs)
	}
}

func TestIssueBulkUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/certificates/bulk" {
			t.Errorf("Expected path /api/v1/certificates/bulk, got %s", r.URL.Path)
		}
		fh, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(fh)
		if header.Filename != "students.csv" || !strings.HasPrefix(string(data), "registration_no") {
			t.Errorf("Unexpected upload %s: %q", header.Filename, data)
		}
		if got := r.FormValue("institution"); got != "Acme University" {
			t.Errorf("Expected institution Acme University, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issuer.BatchResult{ID: "batch-1", Issued: 1})
	}))
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := client.IssueBulk(context.Background(), "/tmp/students.csv", strings.NewReader("registration_no,full_name\n"), "Acme University")
	if err != nil {
		t.Fatalf("IssueBulk() error = %v", err)
	}
	if res.ID != "batch-1" || res.Issued != 1 {
		t.Errorf("IssueBulk() = %+v", res)
	}
}

func TestRenameInstitutionEscapesPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/institutions/ACME UNIVERSITY" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if r.Method != http.MethodPut {
			t.Errorf("Expected method PUT, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"ACME COLLEGE"}`))
	}))
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	name, err := client.RenameInstitution(context.Background(), "ACME UNIVERSITY", "Acme College")
	if err != nil {
		t.Fatalf("RenameInstitution() error = %v", err)
	}
	if name != "ACME COLLEGE" {
		t.Errorf("RenameInstitution() = %s", name)
	}
}

func TestRevokeAllReturnsPartialResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/certificates" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"revoked":[{"fingerprint":"abc","unpinned":true}],"error":"ledger unavailable"}`))
	}))
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	revs, err := client.RevokeAll(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("RevokeAll() error = %v, want 503", err)
	}
	if apiErr.Message != "ledger unavailable" {
		t.Errorf("RevokeAll() message = %q", apiErr.Message)
	}
	if len(revs) != 1 || revs[0].Fingerprint != "abc" || !revs[0].Unpinned {
		t.Errorf("RevokeAll() = %+v", revs)
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "with message",
			err:      &APIError{StatusCode: 409, Message: "duplicate registration number: REG001"},
			expected: "certifier API error (409): duplicate registration number: REG001",
		},
		{
			name:     "without message",
			err:      &APIError{StatusCode: 404},
			expected: "certifier API error (404)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("APIError.Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAPIErrorMethods(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		isNotFound bool
		isBadReq   bool
		isUnauth   bool
		isForbid   bool
		isConflict bool
	}{
		{name: "not found", statusCode: 404, isNotFound: true},
		{name: "bad request", statusCode: 400, isBadReq: true},
		{name: "unauthorized", statusCode: 401, isUnauth: true},
		{name: "forbidden", statusCode: 403, isForbid: true},
		{name: "conflict", statusCode: 409, isConflict: true},
		{name: "other error", statusCode: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.statusCode}

			if got := err.IsNotFound(); got != tt.isNotFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.isNotFound)
			}
			if got := err.IsBadRequest(); got != tt.isBadReq {
				t.Errorf("IsBadRequest() = %v, want %v", got, tt.isBadReq)
			}
			if got := err.IsUnauthorized(); got != tt.isUnauth {
				t.Errorf("IsUnauthorized() = %v, want %v", got, tt.isUnauth)
			}
			if got := err.IsForbidden(); got != tt.isForbid {
				t.Errorf("IsForbidden() = %v, want %v", got, tt.isForbid)
			}
			if got := err.IsConflict(); got != tt.isConflict {
				t.Errorf("IsConflict() = %v, want %v", got, tt.isConflict)
			}
		})
	}
}

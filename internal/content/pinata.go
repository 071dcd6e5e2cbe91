package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ipfs/go-cid"
)

const (
	DefaultPinataAPI     = "https://api.pinata.cloud"
	DefaultPinataGateway = "https://gateway.pinata.cloud/ipfs"
	DefaultMaxRetries    = 3
)

// retryStatus are the HTTP statuses worth another attempt.
var retryStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Pinata pins documents through the Pinata pinning API.
type Pinata struct {
	apiURL       string
	gatewayURL   string
	apiKey       string
	apiSecret    string
	jwt          string
	maxRetries   uint64
	initialDelay time.Duration
	httpClient   *http.Client
	onRetry      func()
}

type PinataOption func(*Pinata)

func WithAPIURL(u string) PinataOption {
	return func(p *Pinata) { p.apiURL = strings.TrimSuffix(u, "/") }
}

func WithGatewayURL(u string) PinataOption {
	return func(p *Pinata) { p.gatewayURL = strings.TrimSuffix(u, "/") }
}

// WithAPIKey authenticates with a key pair.
func WithAPIKey(key, secret string) PinataOption {
	return func(p *Pinata) {
		p.apiKey = key
		p.apiSecret = secret
	}
}

// WithJWT authenticates with a bearer token. It takes precedence over a key pair.
func WithJWT(token string) PinataOption {
	return func(p *Pinata) { p.jwt = token }
}

func WithMaxRetries(n uint64) PinataOption {
	return func(p *Pinata) { p.maxRetries = n }
}

// WithInitialDelay sets the first backoff interval. Later intervals double.
func WithInitialDelay(d time.Duration) PinataOption {
	return func(p *Pinata) { p.initialDelay = d }
}

func WithHTTPClient(c *http.Client) PinataOption {
	return func(p *Pinata) { p.httpClient = c }
}

// WithRetryHook is called before every retried request.
func WithRetryHook(fn func()) PinataOption {
	return func(p *Pinata) { p.onRetry = fn }
}

func NewPinata(opts ...PinataOption) *Pinata {
	p := &Pinata{
		apiURL:       DefaultPinataAPI,
		gatewayURL:   DefaultPinataGateway,
		maxRetries:   DefaultMaxRetries,
		initialDelay: time.Second,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (p *Pinata) Upload(ctx context.Context, name string, data []byte) (string, error) {
	body, contentType, err := multipartBody(name, data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	var address string
	err = p.retry(ctx, "upload", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/pinning/pinFileToIPFS", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)

		var res pinResponse
		if err := p.do(req, http.StatusOK, &res); err != nil {
			return err
		}
		c, err := cid.Decode(res.IpfsHash)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("invalid IpfsHash %q in response: %w", res.IpfsHash, err))
		}
		address = c.String()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	log.Infow("Pinned document", "name", name, "cid", address, "size", len(data))
	return address, nil
}

func (p *Pinata) Unpin(ctx context.Context, address string) error {
	if _, err := cid.Decode(address); err != nil {
		return fmt.Errorf("%w: invalid address %q: %w", ErrUnpinFailed, address, err)
	}
	err := p.retry(ctx, "unpin", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.apiURL+"/pinning/unpin/"+address, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return p.do(req, http.StatusOK, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnpinFailed, err)
	}
	log.Infow("Unpinned document", "cid", address)
	return nil
}

func (p *Pinata) URL(address string) string {
	return p.gatewayURL + "/" + address
}

func (p *Pinata) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(fn, backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx),
		func(err error, wait time.Duration) {
			attempt++
			if p.onRetry != nil {
				p.onRetry()
			}
			log.Warnw("Pinata request failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		})
}

// do sends req and decodes a JSON response into out. Non-retryable statuses
// are returned as permanent errors.
func (p *Pinata) do(req *http.Request, expected int, out interface{}) error {
	if p.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+p.jwt)
	} else {
		req.Header.Set("pinata_api_key", p.apiKey)
		req.Header.Set("pinata_secret_api_key", p.apiSecret)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("pinata returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if retryStatus[resp.StatusCode] {
			return err
		}
		return backoff.Permanent(err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode pinata response: %w", err))
	}
	return nil
}

func multipartBody(name string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	meta, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

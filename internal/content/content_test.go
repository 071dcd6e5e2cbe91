package content

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeAddress(t *testing.T) {
	a, err := ComputeAddress([]byte("certificate"))
	require.NoError(t, err)
	b, err := ComputeAddress([]byte("certificate"))
	require.NoError(t, err)
	c, err := ComputeAddress([]byte("other"))
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, uint64(1), a.Version())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("https://gw.example/ipfs/")

	addr, err := m.Upload(ctx, "a.pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)
	require.Equal(t, "https://gw.example/ipfs/"+addr, m.URL(addr))

	data, ok := m.Get(addr)
	require.True(t, ok)
	require.Equal(t, []byte("%PDF-1.3"), data)

	require.NoError(t, m.Unpin(ctx, addr))
	require.Equal(t, 0, m.Len())
	require.ErrorIs(t, m.Unpin(ctx, addr), ErrNotFound)
}

type fakePinata struct {
	server   *httptest.Server
	calls    atomic.Int32
	failures int32
	status   int
	hash     string
}

func newFakePinata(t *testing.T, failures int32, status int) *fakePinata {
	t.Helper()
	addr, err := ComputeAddress([]byte("document"))
	require.NoError(t, err)

	f := &fakePinata{failures: failures, status: status, hash: addr.String()}
	mux := http.NewServeMux()
	mux.HandleFunc("/pinning/pinFileToIPFS", func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if n <= f.failures {
			w.WriteHeader(f.status)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if header.Filename != "cert.pdf" || string(body) != "document" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"IpfsHash": f.hash, "PinSize": len(body)})
	})
	mux.HandleFunc("/pinning/unpin/", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePinata) client(opts ...PinataOption) *Pinata {
	return NewPinata(append([]PinataOption{
		WithAPIURL(f.server.URL),
		WithAPIKey("key", "secret"),
		WithInitialDelay(time.Millisecond),
	}, opts...)...)
}

func TestPinataUpload(t *testing.T) {
	f := newFakePinata(t, 0, 0)
	p := f.client()

	addr, err := p.Upload(context.Background(), "cert.pdf", []byte("document"))
	require.NoError(t, err)
	require.Equal(t, f.hash, addr)
	require.Equal(t, DefaultPinataGateway+"/"+addr, p.URL(addr))
	require.EqualValues(t, 1, f.calls.Load())
}

func TestPinataUploadRetries(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		status   int
		wantErr  bool
		calls    int32
	}{
		{name: "recovers after 503", failures: 2, status: http.StatusServiceUnavailable, calls: 3},
		{name: "recovers after 429", failures: 3, status: http.StatusTooManyRequests, calls: 4},
		{name: "exhausts retries", failures: 10, status: http.StatusBadGateway, wantErr: true, calls: 4},
		{name: "permanent 400", failures: 10, status: http.StatusBadRequest, wantErr: true, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePinata(t, tt.failures, tt.status)
			var retries atomic.Int32
			p := f.client(WithRetryHook(func() { retries.Add(1) }))

			_, err := p.Upload(context.Background(), "cert.pdf", []byte("document"))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUploadFailed)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.calls, f.calls.Load())
			require.Equal(t, tt.calls-1, retries.Load())
		})
	}
}

func TestPinataUnauthorizedIsPermanent(t *testing.T) {
	f := newFakePinata(t, 0, 0)
	p := NewPinata(WithAPIURL(f.server.URL), WithAPIKey("wrong", "creds"), WithInitialDelay(time.Millisecond))

	_, err := p.Upload(context.Background(), "cert.pdf", []byte("document"))
	require.ErrorIs(t, err, ErrUploadFailed)
	require.EqualValues(t, 1, f.calls.Load())
}

func TestPinataUnpin(t *testing.T) {
	f := newFakePinata(t, 0, 0)
	p := f.client()

	require.NoError(t, p.Unpin(context.Background(), f.hash))
	require.ErrorIs(t, p.Unpin(context.Background(), "not-a-cid"), ErrUnpinFailed)
}

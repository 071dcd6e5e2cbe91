package providers

import (
	"context"
	crypto_ed25519 "crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/storacha/go-ucanto/did"
	"github.com/storacha/go-ucanto/principal"
	ed25519 "github.com/storacha/go-ucanto/principal/ed25519/signer"
	"github.com/storacha/go-ucanto/principal/signer"
	"go.uber.org/fx"

	"github.com/storacha/certifier/internal/attest"
	"github.com/storacha/certifier/internal/config"
	"github.com/storacha/certifier/internal/content"
	"github.com/storacha/certifier/internal/document"
	"github.com/storacha/certifier/internal/handlers"
	"github.com/storacha/certifier/internal/issuer"
	"github.com/storacha/certifier/internal/ledger"
	"github.com/storacha/certifier/internal/metrics"
	"github.com/storacha/certifier/internal/notifier"
	"github.com/storacha/certifier/internal/server"
	"github.com/storacha/certifier/internal/session"
	"github.com/storacha/certifier/internal/store"
	"github.com/storacha/certifier/internal/verifier"
)

var log = logging.Logger("providers")

type SignerParams struct {
	fx.In
	Config *config.Config
}

type SignerResult struct {
	fx.Out
	Signer principal.Signer
}

// ProvideSigner loads the identity verification receipts are signed with.
// Without a configured key an ephemeral one is generated.
func ProvideSigner(params SignerParams) (SignerResult, error) {
	attestCfg := params.Config.Attest

	var s principal.Signer
	var err error
	switch {
	case attestCfg.Key != "":
		s, err = ed25519.Parse(attestCfg.Key)
		if err != nil {
			return SignerResult{}, fmt.Errorf("failed to parse multibase key: %w", err)
		}
	case attestCfg.KeyFile != "":
		s, err = signerFromEd25519PEMFile(attestCfg.KeyFile)
		if err != nil {
			return SignerResult{}, fmt.Errorf("failed to parse key file: %w", err)
		}
	default:
		s, err = ed25519.Generate()
		if err != nil {
			return SignerResult{}, fmt.Errorf("failed to generate key: %w", err)
		}
		log.Warnw("No attest key configured, receipts are signed with an ephemeral key", "did", s.DID().String())
	}

	if attestCfg.DID == "" {
		return SignerResult{Signer: s}, nil
	}

	id, err := did.Parse(attestCfg.DID)
	if err != nil {
		return SignerResult{}, fmt.Errorf("failed to parse did: %w", err)
	}
	wrapped, err := signer.Wrap(s, id)
	if err != nil {
		return SignerResult{}, err
	}
	return SignerResult{Signer: wrapped}, nil
}

func signerFromEd25519PEMFile(path string) (principal.Signer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pemData, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	rest := pemData
	for {
		block, remaining := pem.Decode(rest)
		if block == nil {
			break
		}
		rest = remaining
		if block.Type != "PRIVATE KEY" {
			continue
		}
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
		}
		key, ok := parsedKey.(crypto_ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("the parsed key is not an ED25519 private key")
		}
		return ed25519.FromRaw(key)
	}
	return nil, fmt.Errorf("could not find a PRIVATE KEY block in the PEM file")
}

// ProvideStore opens the certificate index selected by store.driver.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreSQLite:
		s, err := store.NewSQLiteStore(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(s.Close))
		return s, nil
	case config.StoreDynamo:
		s, err := store.NewDynamoDBStore(cfg.Store.Dynamo)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// ProvideLedger opens the ledger selected by ledger.driver.
func ProvideLedger(lc fx.Lifecycle, cfg *config.Config) (ledger.Ledger, error) {
	switch cfg.Ledger.Driver {
	case config.LedgerBadger:
		l, err := ledger.OpenBadger(cfg.Ledger.Badger.Dir)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(l.Close))
		return l, nil
	case config.LedgerEthereum:
		ethCfg := cfg.Ledger.Ethereum
		key := ethCfg.PrivateKey
		if key == "" && ethCfg.PrivateKeyFile != "" {
			data, err := os.ReadFile(ethCfg.PrivateKeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read ledger private key: %w", err)
			}
			key = strings.TrimSpace(string(data))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		l, err := ledger.DialContract(ctx, ledger.ContractConfig{
			Endpoint:        ethCfg.Endpoint,
			ContractAddress: ethCfg.ContractAddress,
			PrivateKey:      key,
			ChainID:         ethCfg.ChainID,
			GasLimit:        ethCfg.GasLimit,
		})
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(l.Close))
		return l, nil
	}
	return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
}

// ProvideContentStore returns the pinning backend selected by content.driver.
func ProvideContentStore(cfg *config.Config, m *metrics.Metrics) (content.Store, error) {
	switch cfg.Content.Driver {
	case config.ContentMemory:
		return content.NewMemoryStore(cfg.Content.GatewayURL), nil
	case config.ContentPinata:
		pc := cfg.Content.Pinata
		opts := []content.PinataOption{
			content.WithAPIURL(pc.APIURL),
			content.WithGatewayURL(cfg.Content.GatewayURL),
			content.WithMaxRetries(pc.MaxRetries),
			content.WithInitialDelay(pc.InitialDelay),
			content.WithRetryHook(m.UploadRetry),
		}
		if pc.JWT != "" {
			opts = append(opts, content.WithJWT(pc.JWT))
		} else {
			opts = append(opts, content.WithAPIKey(pc.APIKey, pc.APISecret))
		}
		if pc.Timeout > 0 {
			opts = append(opts, content.WithHTTPClient(&http.Client{Timeout: pc.Timeout}))
		}
		return content.NewPinata(opts...), nil
	}
	return nil, fmt.Errorf("unknown content driver %q", cfg.Content.Driver)
}

// ProvideRegistry returns the prometheus registry metrics are served from.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideRenderer(cfg *config.Config) *document.Renderer {
	var opts []document.RendererOption
	if cfg.Document.Template != "" {
		opts = append(opts, document.WithTemplate(cfg.Document.Template))
	}
	return document.NewRenderer(opts...)
}

// Module wires the certifier services and the HTTP server. The caller
// provides *config.Config.
var Module = fx.Options(
	fx.Provide(
		func(cfg *config.Config) config.AuthConfig {
			return cfg.Auth
		},

		ProvideSigner,
		ProvideStore,
		ProvideLedger,
		ProvideContentStore,
		fx.Annotate(
			ProvideRegistry,
			fx.As(new(prometheus.Registerer)),
			fx.As(new(prometheus.Gatherer)),
		),
		metrics.New,
		fx.Annotate(
			ProvideRenderer,
			fx.As(new(issuer.Renderer)),
		),
		fx.Annotate(
			document.NewDecoder,
			fx.As(new(verifier.Decoder)),
		),
		fx.Annotate(
			notifier.NewLogNotifier,
			fx.As(new(notifier.Notifier)),
		),

		// Services
		attest.New,
		issuer.New,
		verifier.New,
		session.NewAuthenticator,

		// Handlers and Server
		handlers.NewHandlers,
		server.NewServer,
	),
	fx.Invoke(server.Start),
)

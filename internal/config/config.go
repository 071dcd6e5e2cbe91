package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreDynamo = "dynamodb"

	LedgerBadger   = "badger"
	LedgerEthereum = "ethereum"

	ContentMemory = "memory"
	ContentPinata = "pinata"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Store    StoreConfig    `mapstructure:"store"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Content  ContentConfig  `mapstructure:"content"`
	Document DocumentConfig `mapstructure:"document"`
	Issuer   IssuerConfig   `mapstructure:"issuer"`
	Attest   AttestConfig   `mapstructure:"attest"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	SessionKey   string        `mapstructure:"session_key"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxUploadSize bounds bulk and verification uploads, e.g. "10M".
	MaxUploadSize string `mapstructure:"max_upload_size"`
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds the institute login. PasswordHash is a bcrypt hash, see
// the hash-password command.
type AuthConfig struct {
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"password_hash"`
}

type StoreConfig struct {
	// Driver is one of memory, sqlite or dynamodb.
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Dynamo DynamoConfig `mapstructure:"dynamo"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type DynamoConfig struct {
	// Region of the dynamoDB instance
	Region string `mapstructure:"region"`
	// Name of the table active certificates are indexed in
	CertificatesTableName string `mapstructure:"certificates_table_name"`
	// Name of the table registered institutions are kept in
	InstitutionsTableName string `mapstructure:"institutions_table_name"`

	// Endpoint may be set for local testing, usually with docker, e.g.
	// docker run -p 8000:8000 amazon/dynamodb-local -jar DynamoDBLocal.jar -sharedDb
	// Tables are created on startup only when it is set.
	// Do not set for production.
	Endpoint string `mapstructure:"endpoint"`
}

type LedgerConfig struct {
	// Driver is one of badger or ethereum.
	Driver   string         `mapstructure:"driver"`
	Badger   BadgerConfig   `mapstructure:"badger"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
}

type BadgerConfig struct {
	// Dir is the data directory. Empty keeps the ledger in memory.
	Dir string `mapstructure:"dir"`
}

type EthereumConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	ContractAddress string `mapstructure:"contract_address"`
	// PrivateKey is the hex encoded key transactions are signed with.
	PrivateKey     string `mapstructure:"private_key"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
	// ChainID of 0 asks the node.
	ChainID  int64  `mapstructure:"chain_id"`
	GasLimit uint64 `mapstructure:"gas_limit"`
}

type ContentConfig struct {
	// Driver is one of memory or pinata.
	Driver     string       `mapstructure:"driver"`
	GatewayURL string       `mapstructure:"gateway_url"`
	Pinata     PinataConfig `mapstructure:"pinata"`
}

type PinataConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	JWT          string        `mapstructure:"jwt"`
	MaxRetries   uint64        `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type DocumentConfig struct {
	// Template is an optional PNG or JPEG drawn behind the certificate text.
	Template string `mapstructure:"template"`
}

type IssuerConfig struct {
	// Concurrency is the number of bulk rows processed at once.
	Concurrency int `mapstructure:"concurrency"`
}

// AttestConfig is the identity verification receipts are signed with.
type AttestConfig struct {
	// Key is a multibase encoded ed25519 private key.
	Key string `mapstructure:"key"`
	// KeyFile is a PEM file holding a PKCS#8 ed25519 private key.
	KeyFile string `mapstructure:"key_file"`
	// DID optionally wraps the key in a did:web identity.
	DID string `mapstructure:"did"`
}

// New returns a viper instance reading CERTIFIER_ prefixed environment
// variables and the default config file locations.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("certifier")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".certifier"))
	}

	SetDefaults(v)
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_size", "10M")

	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("store.sqlite.path", "certifier.db")
	v.SetDefault("store.dynamo.certificates_table_name", "certificates")
	v.SetDefault("store.dynamo.institutions_table_name", "institutions")

	v.SetDefault("ledger.driver", LedgerBadger)
	v.SetDefault("ledger.badger.dir", "ledger")
	v.SetDefault("ledger.ethereum.endpoint", "http://127.0.0.1:8545")
	v.SetDefault("ledger.ethereum.gas_limit", 2_000_000)

	v.SetDefault("content.driver", ContentPinata)
	v.SetDefault("content.gateway_url", "https://gateway.pinata.cloud/ipfs")
	v.SetDefault("content.pinata.api_url", "https://api.pinata.cloud")
	v.SetDefault("content.pinata.max_retries", 3)
	v.SetDefault("content.pinata.initial_delay", time.Second)
	v.SetDefault("content.pinata.timeout", 60*time.Second)

	v.SetDefault("issuer.concurrency", 1)

	// keys without a default are only seen by Unmarshal once bound
	for _, key := range []string{
		"server.session_key",
		"auth.email",
		"auth.password_hash",
		"store.dynamo.region",
		"store.dynamo.endpoint",
		"ledger.ethereum.contract_address",
		"ledger.ethereum.private_key",
		"ledger.ethereum.private_key_file",
		"ledger.ethereum.chain_id",
		"content.pinata.api_key",
		"content.pinata.api_secret",
		"content.pinata.jwt",
		"document.template",
		"attest.key",
		"attest.key_file",
		"attest.did",
	} {
		if err := v.BindEnv(key); err != nil {
			panic(err)
		}
	}
}

// Load reads the config file if there is one and decodes it. Validate is
// left to the commands that need a complete configuration.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings required by the selected drivers.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server port not set")
	}
	if len(c.Server.SessionKey) < 32 {
		return fmt.Errorf("server session key must be at least 32 bytes")
	}
	if c.Auth.Email == "" {
		return fmt.Errorf("auth email not set")
	}
	if c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth password hash not set")
	}

	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	case StoreDynamo:
		if c.Store.Dynamo.Region == "" {
			return fmt.Errorf("store region not set")
		}
		if c.Store.Dynamo.CertificatesTableName == "" {
			return fmt.Errorf("store certificates table not set")
		}
		if c.Store.Dynamo.InstitutionsTableName == "" {
			return fmt.Errorf("store institutions table not set")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Ledger.Driver {
	case LedgerBadger:
	case LedgerEthereum:
		if c.Ledger.Ethereum.Endpoint == "" {
			return fmt.Errorf("ledger ethereum endpoint not set")
		}
		if c.Ledger.Ethereum.ContractAddress == "" {
			return fmt.Errorf("ledger contract address not set")
		}
		if c.Ledger.Ethereum.PrivateKey == "" && c.Ledger.Ethereum.PrivateKeyFile == "" {
			return fmt.Errorf("ledger private key not set")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}

	switch c.Content.Driver {
	case ContentMemory:
	case ContentPinata:
		if c.Content.Pinata.JWT == "" && (c.Content.Pinata.APIKey == "" || c.Content.Pinata.APISecret == "") {
			return fmt.Errorf("pinata credentials not set")
		}
	default:
		return fmt.Errorf("unknown content driver %q", c.Content.Driver)
	}

	if c.Issuer.Concurrency < 1 {
		return fmt.Errorf("issuer concurrency must be at least 1")
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/storacha/certifier/internal/config"
)

var (
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "certifier",
	Short: "Certificate issuance and verification service",
	Long: `Certifier issues tamper-evident academic certificates.

Every certificate is identified by a fingerprint of its registration number,
student name, course and institution. Fingerprints are anchored on a ledger,
the rendered document is pinned to IPFS and anyone can verify a certificate
by fingerprint, by its QR payload or by uploading the document itself.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	v = config.New()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.certifier/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	cobra.CheckErr(v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")))
}

// configKeys maps command flags to the config keys they override. Several
// commands declare the same flag, so flags are bound for the running command
// only.
var configKeys = map[string]string{
	"host":                     "server.host",
	"port":                     "server.port",
	"session-key":              "server.session_key",
	"auth-email":               "auth.email",
	"auth-password-hash":       "auth.password_hash",
	"store-driver":             "store.driver",
	"store-sqlite-path":        "store.sqlite.path",
	"store-region":             "store.dynamo.region",
	"store-certificates-table": "store.dynamo.certificates_table_name",
	"store-institutions-table": "store.dynamo.institutions_table_name",
	"store-endpoint":           "store.dynamo.endpoint",
	"ledger-driver":            "ledger.driver",
	"ledger-dir":               "ledger.badger.dir",
	"ledger-endpoint":          "ledger.ethereum.endpoint",
	"ledger-contract":          "ledger.ethereum.contract_address",
	"ledger-key-file":          "ledger.ethereum.private_key_file",
	"content-driver":           "content.driver",
	"content-gateway":          "content.gateway_url",
	"pinata-jwt":               "content.pinata.jwt",
	"attest-key":               "attest.key",
	"attest-key-file":          "attest.key_file",
	"attest-did":               "attest.did",
	"concurrency":              "issuer.concurrency",
}

func bindFlags(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := configKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func initConfig(cmd *cobra.Command) error {
	if err := bindFlags(cmd); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	var err error
	cfg, err = config.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	lvl := logging.LevelInfo
	if cfg.Log.Level != "" {
		lvl, err = logging.LevelFromString(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("invalid log level (%s): %w", cfg.Log.Level, err)
		}
	}

	format := logging.JSONOutput
	switch cfg.Log.Format {
	case "", "json":
	case "text":
		format = logging.PlaintextOutput
	default:
		return fmt.Errorf("invalid log format (%s)", cfg.Log.Format)
	}

	logging.SetupLogging(logging.Config{
		Format: format,
		Level:  lvl,
		Stderr: true,
	})
	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}

// GetViper returns the viper instance
func GetViper() *viper.Viper {
	return v
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/storacha/certifier/internal/config"
	"github.com/storacha/certifier/internal/providers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the certifier HTTP server with the configured store, ledger and content backends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		app := fx.New(
			fx.Provide(func() *config.Config {
				return cfg
			}),
			providers.Module,
		)
		if err := app.Err(); err != nil {
			return err
		}

		app.Run()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Server host")
	serveCmd.Flags().Int("port", 8080, "Server port")
	serveCmd.Flags().String("session-key", "", "Secret used to sign session cookies (at least 32 bytes)")

	serveCmd.Flags().String("auth-email", "", "Institute login email")
	serveCmd.Flags().String("auth-password-hash", "", "Bcrypt hash of the institute password, see hash-password")

	serveCmd.Flags().String("store-driver", config.StoreSQLite, "Certificate index driver (memory, sqlite, dynamodb)")
	serveCmd.Flags().String("store-sqlite-path", "certifier.db", "SQLite database file")
	serveCmd.Flags().String("store-region", "", "AWS region for DynamoDB")
	serveCmd.Flags().String("store-certificates-table", "certificates", "DynamoDB table name for certificates")
	serveCmd.Flags().String("store-institutions-table", "institutions", "DynamoDB table name for institutions")
	serveCmd.Flags().String("store-endpoint", "", "DynamoDB endpoint (for local testing)")

	serveCmd.Flags().String("ledger-driver", config.LedgerBadger, "Ledger driver (badger, ethereum)")
	serveCmd.Flags().String("ledger-dir", "ledger", "Badger ledger directory, empty keeps it in memory")
	serveCmd.Flags().String("ledger-endpoint", "http://127.0.0.1:8545", "Ethereum JSON-RPC endpoint")
	serveCmd.Flags().String("ledger-contract", "", "Address of the certificate contract")
	serveCmd.Flags().String("ledger-key-file", "", "File holding the hex encoded ledger account key")

	serveCmd.Flags().String("content-driver", config.ContentPinata, "Content store driver (memory, pinata)")
	serveCmd.Flags().String("content-gateway", "https://gateway.pinata.cloud/ipfs", "IPFS gateway documents are linked through")
	serveCmd.Flags().String("pinata-jwt", "", "Pinata JWT")

	serveCmd.Flags().String("attest-key", "", "Multibase-encoded ed25519 key receipts are signed with")
	serveCmd.Flags().String("attest-key-file", "", "PEM file holding the receipt signing key")
	serveCmd.MarkFlagsMutuallyExclusive("attest-key", "attest-key-file")
	serveCmd.Flags().String("attest-did", "", "did:web identity of the receipt signer")

	serveCmd.Flags().Int("concurrency", 1, "Bulk rows issued at once")
}

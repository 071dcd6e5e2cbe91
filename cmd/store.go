package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/storacha/certifier/internal/config"
	"github.com/storacha/certifier/internal/issuer"
	"github.com/storacha/certifier/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the certificate index",
	Long: `Commands operating directly on the configured certificate index, without
going through the HTTP API. The ledger is not touched: removing an index
entry does not revoke the certificate.`,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed certificates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db store.Store) error {
			certs, err := db.ListCertificates(ctx)
			if err != nil {
				return fmt.Errorf("failed to list certificates: %w", err)
			}
			printCertificates(cmd.OutOrStdout(), certs)
			return nil
		})
	},
}

var storeAllowInstitutionCmd = &cobra.Command{
	Use:   "allow-institution [name]",
	Short: "Register an institution",
	Long:  `Register an institution. If it is already registered, the command returns success (idempotent).`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := issuer.NormalizeInstitution(args[0])
		if name == "" {
			return fmt.Errorf("institution name is empty")
		}
		return withStore(func(ctx context.Context, db store.Store) error {
			err := db.AddInstitution(ctx, name)
			if errors.Is(err, store.ErrDuplicate) {
				fmt.Fprintf(cmd.OutOrStdout(), "Institution %s is already registered\n", name)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to add institution: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully registered institution %s\n", name)
			return nil
		})
	},
}

var storeRemoveInstitutionCmd = &cobra.Command{
	Use:   "remove-institution [name]",
	Short: "Remove a registered institution",
	Long:  `Remove a registered institution. If it is not registered, the command returns success (idempotent).`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := issuer.NormalizeInstitution(args[0])
		return withStore(func(ctx context.Context, db store.Store) error {
			err := db.RemoveInstitution(ctx, name)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "Institution %s is not registered\n", name)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to remove institution: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed institution %s\n", name)
			return nil
		})
	},
}

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every certificate from the index",
	Long: `Remove every certificate from the index. Ledger entries and pinned
documents are left as they are; use "client revoke-all" to revoke.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to clear the index without --yes")
		}
		return withStore(func(ctx context.Context, db store.Store) error {
			certs, err := db.ListCertificates(ctx)
			if err != nil {
				return fmt.Errorf("failed to list certificates: %w", err)
			}
			removed := 0
			for _, c := range certs {
				err := db.RemoveCertificate(ctx, c.Fingerprint)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to remove %s after %d removals: %w", c.Fingerprint, removed, err)
				}
				removed++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d certificates from the index\n", removed)
			return nil
		})
	},
}

// withStore opens the configured index for the duration of fn.
func withStore(fn func(ctx context.Context, db store.Store) error) error {
	ctx := context.Background()
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		db, err := store.NewSQLiteStore(cfg.Store.SQLite.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer db.Close()
		return fn(ctx, db)
	case config.StoreDynamo:
		db, err := store.NewDynamoDBStore(cfg.Store.Dynamo)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		return fn(ctx, db)
	case config.StoreMemory:
		return fmt.Errorf("the memory store only lives inside a running server")
	}
	return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func printCertificates(out io.Writer, certs []store.Certificate) {
	if len(certs) == 0 {
		fmt.Fprintln(out, "No certificates")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINGERPRINT\tREGISTRATION NO\tSTUDENT\tCOURSE\tINSTITUTION\tISSUED")
	for _, c := range certs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Fingerprint, c.RegistrationNo, c.StudentName, c.CourseName, c.Institution,
			c.IssueDate.Format("2006-01-02"))
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(storeCmd)

	storeCmd.PersistentFlags().String("store-driver", config.StoreSQLite, "Certificate index driver (sqlite, dynamodb)")
	storeCmd.PersistentFlags().String("store-sqlite-path", "certifier.db", "SQLite database file")
	storeCmd.PersistentFlags().String("store-region", "", "AWS region for DynamoDB")
	storeCmd.PersistentFlags().String("store-certificates-table", "certificates", "DynamoDB table name for certificates")
	storeCmd.PersistentFlags().String("store-institutions-table", "institutions", "DynamoDB table name for institutions")
	storeCmd.PersistentFlags().String("store-endpoint", "", "DynamoDB endpoint (for local testing)")

	storeClearCmd.Flags().Bool("yes", false, "Confirm clearing the index")

	storeCmd.AddCommand(storeListCmd, storeClearCmd, storeAllowInstitutionCmd, storeRemoveInstitutionCmd)
}

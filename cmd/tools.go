package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/spf13/cobra"
	ed25519 "github.com/storacha/go-ucanto/principal/ed25519/signer"

	"github.com/storacha/certifier/internal/certificate"
	"github.com/storacha/certifier/internal/session"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Compute a certificate fingerprint offline",
	Long: `Normalize the four certificate fields and print their fingerprint.
Nothing is read from or written to the ledger.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var fields certificate.Fields
		fields.RegistrationNo, _ = cmd.Flags().GetString("registration-no")
		fields.StudentName, _ = cmd.Flags().GetString("student-name")
		fields.CourseName, _ = cmd.Flags().GetString("course-name")
		fields.Institution, _ = cmd.Flags().GetString("institution")

		if err := fields.Validate(); err != nil {
			return err
		}
		fields = fields.Normalize()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"fingerprint": fields.Fingerprint(),
				"fields":      fields,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), fields.Fingerprint())
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash the institute password for auth.password_hash",
	Long:  `Read a password from --password or the first line of stdin and print its bcrypt hash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return fmt.Errorf("password is empty")
		}

		hash, err := session.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a receipt signing key",
	Long:  `Generate an ed25519 key and print it multibase encoded for attest.key, followed by its did:key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := ed25519.Generate()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		key, err := multibase.Encode(multibase.Base64pad, s.Encode())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "key: %s\n", key)
		fmt.Fprintf(cmd.OutOrStdout(), "did: %s\n", s.DID().String())
		return nil
	},
}

func init() {
	fingerprintCmd.Flags().String("registration-no", "", "Student registration number")
	fingerprintCmd.Flags().String("student-name", "", "Student full name")
	fingerprintCmd.Flags().String("course-name", "", "Course name")
	fingerprintCmd.Flags().String("institution", "", "Issuing institution")
	fingerprintCmd.Flags().Bool("json", false, "Print the normalized fields along with the fingerprint")

	hashPasswordCmd.Flags().String("password", "", "Password to hash, read from stdin when empty")

	rootCmd.AddCommand(fingerprintCmd, hashPasswordCmd, keygenCmd)
}

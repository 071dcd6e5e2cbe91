package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/storacha/certifier/client"
	"github.com/storacha/certifier/internal/handlers"
)

var (
	apiURL   string
	timeout  time.Duration
	email    string
	password string
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Certifier CLI client",
	Long: `CLI client for interacting with the certifier API.

Verification commands are public. Issuance, revocation and institution
management log in as the institute first, using --email and --password
(or CERTIFIER_CLIENT_EMAIL and CERTIFIER_CLIENT_PASSWORD).`,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the service is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return fmt.Errorf("creating client: %w", err)
		}
		ctx, cancel := newContext()
		defer cancel()
		if err := c.HealthCheck(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [fingerprint]",
	Short: "Verify a certificate by fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return fmt.Errorf("creating client: %w", err)
		}
		ctx, cancel := newContext()
		defer cancel()
		resp, err := c.Verify(ctx, args[0])
		if err != nil {
			return fmt.Errorf("verifying certificate: %w", err)
		}
		return printJSON(cmd, resp)
	},
}

var verifyFileCmd = &cobra.Command{
	Use:   "verify-file [document]",
	Short: "Verify a certificate document or a QR payload file",
	Long: `Upload a certificate document (PDF or image) so the service reads its QR
payload and verifies it. With --payload the file is sent as the JSON payload
itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return fmt.Errorf("creating client: %w", err)
		}
		ctx, cancel := newContext()
		defer cancel()

		var resp *handlers.VerifyResponse
		if asPayload, _ := cmd.Flags().GetBool("payload"); asPayload {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			resp, err = c.VerifyPayload(ctx, json.RawMessage(data))
			if err != nil {
				return fmt.Errorf("verifying payload: %w", err)
			}
		} else {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			resp, err = c.VerifyDocument(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return fmt.Errorf("verifying document: %w", err)
			}
		}
		return printJSON(cmd, resp)
	},
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a single certificate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req handlers.IssueRequest
		req.RegistrationNo, _ = cmd.Flags().GetString("registration-no")
		req.StudentName, _ = cmd.Flags().GetString("student-name")
		req.CourseName, _ = cmd.Flags().GetString("course-name")
		req.Institution, _ = cmd.Flags().GetString("institution")
		req.Email, _ = cmd.Flags().GetString("student-email")
		req.IssueDate, _ = cmd.Flags().GetString("issue-date")

		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		issued, err := c.Issue(ctx, req)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.IsConflict() {
				return fmt.Errorf("certificate already issued: %w", err)
			}
			return fmt.Errorf("issuing certificate: %w", err)
		}
		return printJSON(cmd, issued)
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk [file]",
	Short: "Issue certificates from a CSV, XLSX or DOCX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		institution, _ := cmd.Flags().GetString("institution")
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		res, err := c.IssueBulk(ctx, filepath.Base(args[0]), f, institution)
		if err != nil {
			return fmt.Errorf("issuing batch: %w", err)
		}
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		if res.Aborted {
			return fmt.Errorf("batch %s aborted: %s", res.ID, res.AbortReason)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active certificates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		certs, err := c.ListCertificates(ctx)
		if err != nil {
			return fmt.Errorf("listing certificates: %w", err)
		}
		printCertificates(cmd.OutOrStdout(), certs)
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke [fingerprint]",
	Short: "Revoke a certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		rev, err := c.Revoke(ctx, args[0])
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.IsNotFound() {
				return fmt.Errorf("certificate not found: %w", err)
			}
			return fmt.Errorf("revoking certificate: %w", err)
		}
		return printJSON(cmd, rev)
	},
}

var revokeAllCmd = &cobra.Command{
	Use:   "revoke-all",
	Short: "Revoke every active certificate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to revoke every certificate without --yes")
		}
		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		revoked, err := c.RevokeAll(ctx)
		if err != nil && len(revoked) == 0 {
			return fmt.Errorf("revoking certificates: %w", err)
		}
		// partial results are printed before the error
		if perr := printJSON(cmd, revoked); perr != nil {
			return perr
		}
		if err != nil {
			return fmt.Errorf("revoking certificates: %w", err)
		}
		failed := 0
		for _, r := range revoked {
			if r.Error != "" {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d certificates could not be revoked", failed, len(revoked))
		}
		return nil
	},
}

var institutionCmd = &cobra.Command{
	Use:   "institution",
	Short: "Manage registered institutions",
}

var institutionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered institutions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		insts, err := c.ListInstitutions(ctx)
		if err != nil {
			return fmt.Errorf("listing institutions: %w", err)
		}
		for _, inst := range insts {
			fmt.Fprintln(cmd.OutOrStdout(), inst.Name)
		}
		return nil
	},
}

var institutionAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register an institution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		name, err := c.AddInstitution(ctx, args[0])
		if err != nil {
			return fmt.Errorf("adding institution: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", name)
		return nil
	},
}

var institutionRenameCmd = &cobra.Command{
	Use:   "rename [from] [to]",
	Short: "Rename a registered institution",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		name, err := c.RenameInstitution(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("renaming institution: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed to %s\n", name)
		return nil
	},
}

var institutionRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a registered institution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newInstituteClient()
		if err != nil {
			return err
		}
		defer cancel()

		if err := c.RemoveInstitution(ctx, args[0]); err != nil {
			return fmt.Errorf("removing institution: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)

	clientCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "certifier API base URL")
	clientCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")
	clientCmd.PersistentFlags().StringVar(&email, "email", os.Getenv("CERTIFIER_CLIENT_EMAIL"), "institute login email")
	clientCmd.PersistentFlags().StringVar(&password, "password", os.Getenv("CERTIFIER_CLIENT_PASSWORD"), "institute login password")

	issueCmd.Flags().String("registration-no", "", "Student registration number (required)")
	issueCmd.Flags().String("student-name", "", "Student full name (required)")
	issueCmd.Flags().String("course-name", "", "Course name (required)")
	issueCmd.Flags().String("institution", "", "Issuing institution, defaults to the session institution")
	issueCmd.Flags().String("student-email", "", "Address the certificate is sent to (required)")
	issueCmd.Flags().String("issue-date", "", "Issue date as YYYY-MM-DD, defaults to today")
	issueCmd.MarkFlagRequired("registration-no")
	issueCmd.MarkFlagRequired("student-name")
	issueCmd.MarkFlagRequired("course-name")
	issueCmd.MarkFlagRequired("student-email")

	bulkCmd.Flags().String("institution", "", "Institution applied to rows without one")

	verifyFileCmd.Flags().Bool("payload", false, "Send the file as a JSON QR payload")

	revokeAllCmd.Flags().Bool("yes", false, "Confirm revoking every certificate")

	institutionCmd.AddCommand(institutionListCmd, institutionAddCmd, institutionRenameCmd, institutionRemoveCmd)
	clientCmd.AddCommand(healthCmd, verifyCmd, verifyFileCmd, issueCmd, bulkCmd, listCmd, revokeCmd, revokeAllCmd, institutionCmd)
}

// newClient creates a configured certifier client
func newClient() (*client.Client, error) {
	baseURL := apiURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return client.New(baseURL,
		client.WithTimeout(timeout),
		client.WithUserAgent("certifier-cli/1.0"),
	)
}

func newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// newInstituteClient returns a client logged in as the institute.
func newInstituteClient() (*client.Client, context.Context, context.CancelFunc, error) {
	if email == "" || password == "" {
		return nil, nil, nil, fmt.Errorf("--email and --password are required")
	}
	c, err := newClient()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating client: %w", err)
	}
	ctx, cancel := newContext()
	if err := c.Login(ctx, email, password); err != nil {
		cancel()
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			return nil, nil, nil, fmt.Errorf("invalid credentials: %w", err)
		}
		return nil, nil, nil, fmt.Errorf("logging in: %w", err)
	}
	return c, ctx, cancel, nil
}

func printJSON(cmd *cobra.Command, resp any) error {
	output, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/model"
)

// NewCredentialsCommand creates the credentials command group.
func NewCredentialsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage per-user credential records",
	}

	cmd.AddCommand(newCredentialsSaveCommand(rootOpts))
	cmd.AddCommand(newCredentialsGetCommand(rootOpts))
	cmd.AddCommand(newCredentialsListCommand(rootOpts))
	cmd.AddCommand(newCredentialsActiveCommand(rootOpts))

	return cmd
}

func newCredentialsSaveCommand(rootOpts *RootOptions) *cobra.Command {
	var cred model.Credential

	cmd := &cobra.Command{
		Use:           "save <email>",
		Short:         "Save a credential record (full replace)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openDatastore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			f := formatter(rootOpts, cmd)
			cred.Email = args[0]
			if err := ds.SaveCredential(cmd.Context(), cred); err != nil {
				return renderStoreError(f, err)
			}
			return f.Successf(map[string]string{"email": cred.Email}, "saved credential for %s", cred.Email)
		},
	}

	cmd.Flags().StringVar(&cred.Name, "name", "", "display name")
	cmd.Flags().StringVar(&cred.DeviceID, "device-id", "", "device identifier")
	cmd.Flags().StringVar(&cred.AccessToken, "access-token", "", "access token")
	cmd.Flags().StringVar(&cred.RefreshToken, "refresh-token", "", "refresh token")

	return cmd
}

func newCredentialsGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <email>",
		Short:         "Show the credential record for an email",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openDatastore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			f := formatter(rootOpts, cmd)
			cred, err := ds.GetCredential(cmd.Context(), args[0])
			if err != nil {
				return renderStoreError(f, err)
			}
			if cred == nil {
				return f.Successf(nil, "no credential for %s", args[0])
			}
			return f.Successf(cred, "%s\t%s\t%s\tlast used %s",
				cred.Email, cred.Name, cred.DeviceID, cred.LastUsedAt.Format(time.RFC3339))
		},
	}
}

func newCredentialsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List all credential records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openDatastore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			f := formatter(rootOpts, cmd)
			creds, err := ds.ListCredentials(cmd.Context())
			if err != nil {
				return renderStoreError(f, err)
			}

			if rootOpts.Format == "json" {
				return f.Success(creds)
			}
			for _, cred := range creds {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					cred.Email, cred.Name, cred.LastUsedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newCredentialsActiveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "active-since <rfc3339>",
		Short:         "List credentials used at or after a threshold",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := time.Parse(time.RFC3339, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid threshold", err)
			}

			ds, err := openDatastore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			f := formatter(rootOpts, cmd)
			creds, err := ds.CredentialsActiveSince(cmd.Context(), threshold)
			if err != nil {
				return renderStoreError(f, err)
			}

			if rootOpts.Format == "json" {
				return f.Success(creds)
			}
			for _, cred := range creds {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n",
					cred.Email, cred.LastUsedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

// NewReportsCommand creates the reports command group.
func NewReportsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Manage per-day summary reports",
	}

	cmd.AddCommand(newReportsSaveCommand(rootOpts))
	cmd.AddCommand(newReportsGetCommand(rootOpts))

	return cmd
}

func newReportsSaveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		report model.Report
		date   string
	)

	cmd := &cobra.Command{
		Use:           "save <email>",
		Short:         "Save a per-day report (full replace)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := time.Parse(time.RFC3339, date)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid date", err)
			}

			ds, err := openDatastore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			f := formatter(rootOpts, cmd)
			report.Email = args[0]
			report.Date = parsed
			if err := ds.SaveReport(cmd.Context(), report); err != nil {
				return renderStoreError(f, err)
			}
			return f.Successf(map[string]string{"email": report.Email}, "saved report for %s on %s",
				report.Email, model.Day(report.Date).Format("2006-01-02"))
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "report day, RFC 3339 (required)")
	cmd.Flags().Float64Var(&report.SpentTime, "spent", 0, "spent time in seconds")
	cmd.Flags().Float64Var(&report.CallTime, "call", 0, "call time in seconds")
	cmd.Flags().BoolVar(&report.WFH, "wfh", false, "worked from home")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func newReportsGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <email> <rfc3339>",
		Short:         "Show the report for an email on a day",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid day", err)
			}

			ds, err := openDatastore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			f := formatter(rootOpts, cmd)
			report, err := ds.GetReport(cmd.Context(), args[0], day)
			if err != nil {
				return renderStoreError(f, err)
			}
			if report == nil {
				return f.Successf(nil, "no report for %s on %s", args[0], model.Day(day).Format("2006-01-02"))
			}
			return f.Successf(report, "%s\t%s\tspent %.0fs\tcall %.0fs\tactive %.0fs\twfh %t",
				report.Email, model.Day(report.Date).Format("2006-01-02"),
				report.SpentTime, report.CallTime, report.ActiveTime(), report.WFH)
		},
	}
}

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/model"
)

// NewBucketsCommand creates the buckets command group.
func NewBucketsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "Manage event buckets",
	}

	cmd.AddCommand(newBucketsListCommand(rootOpts))
	cmd.AddCommand(newBucketsCreateCommand(rootOpts))
	cmd.AddCommand(newBucketsGetCommand(rootOpts))
	cmd.AddCommand(newBucketsDeleteCommand(rootOpts))

	return cmd
}

// formatter builds the output formatter for one command invocation.
func formatter(rootOpts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  rootOpts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: rootOpts.Verbose,
	}
}

// renderStoreError prints a storage error in the configured format and
// converts it into the right exit code.
func renderStoreError(f *OutputFormatter, err error) error {
	var se *model.StoreError
	if errors.As(err, &se) {
		f.Error(string(se.Code), se.Error())
		return &ExitError{Code: ExitFailure, Message: se.Error()}
	}
	return WrapExitError(ExitCommandError, "operation failed", err)
}

func newBucketsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List all buckets",
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
			buckets, err := ds.Buckets(cmd.Context())
			if err != nil {
				return renderStoreError(f, err)
			}

			if rootOpts.Format == "json" {
				return f.Success(buckets)
			}
			for _, b := range buckets {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\n",
					b.ID, b.Type, b.Client, b.Hostname, b.Created.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}

func newBucketsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var meta model.BucketMetadata

	cmd := &cobra.Command{
		Use:           "create <bucket-id>",
		Short:         "Create a bucket",
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
			meta.ID = args[0]
			if err := ds.CreateBucket(cmd.Context(), meta); err != nil {
				return renderStoreError(f, err)
			}
			return f.Successf(map[string]string{"id": meta.ID}, "created bucket %s", meta.ID)
		},
	}

	hostname, _ := os.Hostname()
	cmd.Flags().StringVar(&meta.Name, "name", "", "descriptive name (defaults to the id)")
	cmd.Flags().StringVar(&meta.Type, "type", "", "event type the bucket tracks")
	cmd.Flags().StringVar(&meta.Client, "client", "tidemark-cli", "producer writing into the bucket")
	cmd.Flags().StringVar(&meta.Hostname, "hostname", hostname, "machine the producer runs on")

	return cmd
}

func newBucketsGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <bucket-id>",
		Short:         "Show one bucket's metadata",
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
			meta, err := ds.GetBucketMetadata(cmd.Context(), args[0])
			if err != nil {
				return renderStoreError(f, err)
			}
			return f.Successf(meta, "%s\t%s\t%s\t%s\t%s",
				meta.ID, meta.Type, meta.Client, meta.Hostname, meta.Created.Format("2006-01-02T15:04:05Z07:00"))
		},
	}
}

func newBucketsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <bucket-id>",
		Short:         "Delete a bucket and all its events",
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
			if err := ds.DeleteBucket(cmd.Context(), args[0]); err != nil {
				return renderStoreError(f, err)
			}
			return f.Successf(map[string]string{"id": args[0]}, "deleted bucket %s", args[0])
		},
	}
}

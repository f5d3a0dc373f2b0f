package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidemark/tidemark/internal/model"
	"github.com/tidemark/tidemark/internal/timespan"
)

// eventFlags are the shared flags for commands that write one event.
type eventFlags struct {
	Timestamp string
	Duration  float64
	Data      string
}

func (ef *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ef.Timestamp, "timestamp", "", "interval start, RFC 3339 (defaults to now)")
	cmd.Flags().Float64Var(&ef.Duration, "duration", 0, "interval length in seconds")
	cmd.Flags().StringVar(&ef.Data, "data", "{}", "event payload as a JSON object")
}

func (ef *eventFlags) event() (model.Event, error) {
	ts := time.Now().UTC()
	if ef.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, ef.Timestamp)
		if err != nil {
			return model.Event{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(ef.Data), &data); err != nil {
		return model.Event{}, fmt.Errorf("parse data: %w", err)
	}

	return model.Event{
		Timestamp: ts,
		Duration:  time.Duration(ef.Duration * float64(time.Second)),
		Data:      data,
	}, nil
}

// rangeFlags are the shared flags for commands that query a time range.
type rangeFlags struct {
	Start string
	End   string
}

func (rf *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rf.Start, "start", "", "range start, RFC 3339 (open if omitted)")
	cmd.Flags().StringVar(&rf.End, "end", "", "range end, RFC 3339 (open if omitted)")
}

func (rf *rangeFlags) parse() (timespan.Range, error) {
	var r timespan.Range
	if rf.Start != "" {
		start, err := time.Parse(time.RFC3339, rf.Start)
		if err != nil {
			return timespan.Range{}, fmt.Errorf("parse start: %w", err)
		}
		r.Start = start
	}
	if rf.End != "" {
		end, err := time.Parse(time.RFC3339, rf.End)
		if err != nil {
			return timespan.Range{}, fmt.Errorf("parse end: %w", err)
		}
		r.End = end
	}
	return r, nil
}

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query and write bucket events",
	}

	cmd.AddCommand(newEventsListCommand(rootOpts))
	cmd.AddCommand(newEventsCountCommand(rootOpts))
	cmd.AddCommand(newEventsInsertCommand(rootOpts))
	cmd.AddCommand(newEventsHeartbeatCommand(rootOpts))
	cmd.AddCommand(newEventsDeleteCommand(rootOpts))

	return cmd
}

func newEventsListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	ranges := &rangeFlags{}

	cmd := &cobra.Command{
		Use:           "list <bucket-id>",
		Short:         "List events overlapping a time range, newest first",
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
			r, err := ranges.parse()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid range", err)
			}

			events, err := ds.GetEvents(cmd.Context(), args[0], limit, r)
			if err != nil {
				return renderStoreError(f, err)
			}

			if rootOpts.Format == "json" {
				return f.Success(events)
			}
			for _, e := range events {
				data, _ := json.Marshal(e.Data)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.3fs\t%s\n",
					e.ID, e.Timestamp.Format(time.RFC3339), e.Duration.Seconds(), data)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", -1, "maximum events to return (-1 for no limit)")
	ranges.register(cmd)

	return cmd
}

func newEventsCountCommand(rootOpts *RootOptions) *cobra.Command {
	ranges := &rangeFlags{}

	cmd := &cobra.Command{
		Use:           "count <bucket-id>",
		Short:         "Count events overlapping a time range",
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
			r, err := ranges.parse()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid range", err)
			}

			count, err := ds.CountEvents(cmd.Context(), args[0], r)
			if err != nil {
				return renderStoreError(f, err)
			}
			return f.Successf(map[string]int{"count": count}, "%d", count)
		},
	}

	ranges.register(cmd)
	return cmd
}

func newEventsInsertCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &eventFlags{}

	cmd := &cobra.Command{
		Use:           "insert <bucket-id>",
		Short:         "Insert one event",
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
			event, err := flags.event()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid event", err)
			}

			inserted, err := ds.InsertOne(cmd.Context(), args[0], event)
			if err != nil {
				return renderStoreError(f, err)
			}
			return f.Successf(inserted, "inserted event %s", inserted.ID)
		},
	}

	flags.register(cmd)
	return cmd
}

func newEventsHeartbeatCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &eventFlags{}

	cmd := &cobra.Command{
		Use:           "heartbeat <bucket-id>",
		Short:         "Replace the bucket's last event, keeping its id",
		Long: `Replace the chronologically last event in a bucket with the given
interval and payload. The event keeps its identity, so a watcher can
extend its current interval without growing the event log.`,
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
			event, err := flags.event()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid event", err)
			}

			replaced, err := ds.ReplaceLast(cmd.Context(), args[0], event)
			if err != nil {
				return renderStoreError(f, err)
			}
			return f.Successf(replaced, "replaced event %s", replaced.ID)
		},
	}

	flags.register(cmd)
	return cmd
}

func newEventsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <bucket-id> <event-id>",
		Short:         "Delete one event",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid event id", err)
			}

			ds, err := openDatastore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			f := formatter(rootOpts, cmd)
			deleted, err := ds.DeleteEvent(cmd.Context(), args[0], eventID)
			if err != nil {
				return renderStoreError(f, err)
			}
			if !deleted {
				return f.Successf(map[string]bool{"deleted": false}, "event %d not found", eventID)
			}
			return f.Successf(map[string]bool{"deleted": true}, "deleted event %d", eventID)
		},
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/eventguard/internal/checkin"
	"github.com/roach88/eventguard/internal/engine"
	"github.com/roach88/eventguard/internal/importer"
	"github.com/roach88/eventguard/internal/model"
)

// offline wraps an operator command that works on the local store.
func offline(opts *RootOptions, run func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := opts.setup(cmd.ErrOrStderr()); err != nil {
			return err
		}
		f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return withEngine(ctx, opts, func(ctx context.Context, eng *engine.Engine) error {
			return run(ctx, cmd, f, eng, args)
		})
	}
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	var day int

	cmd := &cobra.Command{
		Use:   "scan <guest-id>",
		Short: "Check a guest in",
		Long: `Record a scan of a ticket against the local store.

Every scan is logged. An unknown ticket or a repeat scan on the same day
is logged too and makes the command exit with code 1.

Examples:
  eventguard scan TCK-0042 --day 1
  eventguard scan TCK-0042 --day 2 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
			d, err := model.ParseDay(day)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --day", err)
			}
			res, err := eng.Scan(ctx, args[0], d)
			if err != nil {
				return WrapExitError(ExitCommandError, "scan failed", err)
			}
			if err := f.Emit(res, func(w io.Writer) error {
				fmt.Fprintf(w, "[%s] %s\n", res.Log.Status, res.Message)
				return nil
			}); err != nil {
				return err
			}
			if !res.Success {
				return NewExitError(ExitFailure, res.Message)
			}
			return nil
		}),
	}

	cmd.Flags().IntVarP(&day, "day", "d", 1, "event day (1 or 2)")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Bulk import guests",
		Long: `Bulk import guests from a CSV, CUE, YAML or JSON file.

CSV files may start with a header naming the id, name, email, phone and
category columns; without one the columns are read in that order. Rows
without an id get a generated ticket id. Guests whose id already exists
are skipped.

Examples:
  eventguard import guests.csv
  eventguard import guests.cue --format json`,
		Args: cobra.ExactArgs(1),
		RunE: offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
			parsed, err := importer.File(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read guests", err)
			}
			rep, err := eng.BulkImport(ctx, parsed.Guests)
			if err != nil {
				return WrapExitError(ExitCommandError, "import failed", err)
			}

			out := struct {
				engine.ImportReport
				Failed int `json:"failed"`
			}{rep, parsed.Failed}
			return f.Emit(out, func(w io.Writer) error {
				fmt.Fprintf(w, "Imported %d guests (%d skipped, %d unreadable rows)\n", rep.Added, rep.Skipped, parsed.Failed)
				return nil
			})
		}),
	}
}

// NewGuestsCommand creates the guests command and its subcommands.
func NewGuestsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guests [query]",
		Short: "List or search guests",
		Long: `List guests, or those whose id, name or email contains query.

Examples:
  eventguard guests
  eventguard guests priya
  eventguard guests add --id TCK-1 --name "Priya Rao"
  eventguard guests delete TCK-1`,
		Args: cobra.MaximumNArgs(1),
		RunE: offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
			q := ""
			if len(args) == 1 {
				q = args[0]
			}
			gs, err := eng.Search(ctx, q)
			if err != nil {
				return WrapExitError(ExitCommandError, "search failed", err)
			}
			return f.Emit(gs, func(w io.Writer) error {
				return writeGuests(w, gs)
			})
		}),
	}

	cmd.AddCommand(newGuestAddCommand(rootOpts))
	cmd.AddCommand(newGuestDeleteCommand(rootOpts))
	return cmd
}

func newGuestAddCommand(rootOpts *RootOptions) *cobra.Command {
	var g model.Guest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a single guest",
		Args:  cobra.NoArgs,
		RunE: offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
			added, err := eng.AddGuest(ctx, g)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to add guest", err)
			}
			return f.Emit(added, func(w io.Writer) error {
				fmt.Fprintf(w, "Added %s (%s)\n", added.Name, added.ID)
				return nil
			})
		}),
	}

	cmd.Flags().StringVar(&g.ID, "id", "", "ticket id")
	cmd.Flags().StringVar(&g.Name, "name", "", "guest name")
	cmd.Flags().StringVar(&g.Email, "email", "", "email address")
	cmd.Flags().StringVar(&g.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&g.Category, "category", "", "category (default General)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newGuestDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <guest-id>",
		Short: "Delete a guest and its scan logs",
		Args:  cobra.ExactArgs(1),
		RunE: offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
			rep, err := eng.DeleteGuest(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to delete guest", err)
			}
			return f.Emit(rep, func(w io.Writer) error {
				fmt.Fprintf(w, "Deleted %s (%d logs removed)\n", rep.GuestID, rep.LogsRemoved)
				return nil
			})
		}),
	}
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit  int
		export string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show scan logs",
		Long: `Show scan logs, newest first.

With --export the logs are written as a JSON array to a file that another
station can merge with merge-logs.

Examples:
  eventguard logs --limit 20
  eventguard logs --export desk-a.json`,
		Args: cobra.NoArgs,
		RunE: offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
			if export != "" {
				logs, err := eng.Logs(ctx, 0)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read logs", err)
				}
				data, err := json.MarshalIndent(logs, "", "  ")
				if err != nil {
					return fmt.Errorf("encode logs: %w", err)
				}
				if err := os.WriteFile(export, append(data, '\n'), 0o644); err != nil {
					return WrapExitError(ExitCommandError, "failed to write export", err)
				}
				return f.Emit(map[string]any{"file": export, "logs": len(logs)}, func(w io.Writer) error {
					fmt.Fprintf(w, "Exported %d logs to %s\n", len(logs), export)
					return nil
				})
			}

			logs, err := eng.Logs(ctx, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read logs", err)
			}
			return f.Emit(logs, func(w io.Writer) error {
				return writeLogs(w, logs)
			})
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum logs to show (0 for all)")
	cmd.Flags().StringVar(&export, "export", "", "write all logs as JSON to this file")
	return cmd
}

// NewMergeLogsCommand creates the merge-logs command.
func NewMergeLogsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge-logs <file>",
		Short: "Merge scan logs exported by another station",
		Long: `Merge a JSON log export from another station into the local store.

Logs already present are ignored. Guests checked in by the merged logs
are updated. The merge is not sent to any sync session.

Examples:
  eventguard merge-logs desk-a.json`,
		Args: cobra.ExactArgs(1),
		RunE: offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
			logs, err := readLogExport(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read log export", err)
			}
			res, err := eng.MergeLogs(ctx, logs)
			if err != nil {
				return WrapExitError(ExitCommandError, "merge failed", err)
			}
			return f.Emit(res, func(w io.Writer) error {
				fmt.Fprintf(w, "Merged %d new logs, %d guests updated\n", res.Added, res.GuestsUpdated)
				return nil
			})
		}),
	}
}

// readLogExport accepts a bare JSON array of logs or a full snapshot.
func readLogExport(path string) ([]model.ScanLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var logs []model.ScanLog
	if err := json.Unmarshal(data, &logs); err == nil {
		return logs, nil
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%s: expected a JSON array of scan logs: %w", path, err)
	}
	return snap.ScanLogs, nil
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show check-in totals",
		Args:  cobra.NoArgs,
		RunE: offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
			st, err := eng.Stats(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read stats", err)
			}
			return f.Emit(st, func(w io.Writer) error {
				return writeStats(w, st)
			})
		}),
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every guest and scan log",
		Long: `Delete every guest and scan log from the local store.

This cannot be undone; --yes is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to reset without --yes")
			}
			return offline(rootOpts, func(ctx context.Context, cmd *cobra.Command, f *OutputFormatter, eng *engine.Engine, args []string) error {
				if err := eng.Reset(ctx); err != nil {
					return WrapExitError(ExitCommandError, "reset failed", err)
				}
				return f.Emit(map[string]bool{"reset": true}, func(w io.Writer) error {
					fmt.Fprintln(w, "Station reset")
					return nil
				})
			})(cmd, args)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func writeGuests(w io.Writer, gs []model.Guest) error {
	if len(gs) == 0 {
		fmt.Fprintln(w, "No guests found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tDAY 1\tDAY 2")
	for _, g := range gs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", g.ID, g.Name, g.Category, clock(g.CheckInDay1), clock(g.CheckInDay2))
	}
	return tw.Flush()
}

func writeLogs(w io.Writer, logs []model.ScanLog) error {
	if len(logs) == 0 {
		fmt.Fprintln(w, "No scans yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tDAY\tSTATUS\tGUEST\tMESSAGE")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", l.Timestamp.Local().Format(time.DateTime), int(l.Day), l.Status, l.GuestID, l.Message)
	}
	return tw.Flush()
}

func writeStats(w io.Writer, st checkin.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Guests\t%d\n", st.TotalGuests)
	fmt.Fprintf(tw, "Checked in day 1\t%d\n", st.CheckedInDay1)
	fmt.Fprintf(tw, "Checked in day 2\t%d\n", st.CheckedInDay2)
	fmt.Fprintf(tw, "Scans\t%d\n", st.TotalLogs)
	for _, s := range []model.Status{model.StatusSuccess, model.StatusDuplicate, model.StatusError} {
		fmt.Fprintf(tw, "  %s\t%d\n", strings.ToLower(string(s)), st.LogsByStatus[s])
	}
	return tw.Flush()
}

func clock(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.TimeOnly)
}

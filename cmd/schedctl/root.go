package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/infrastructure/backend"
	"github.com/fundacion-cms/content-scheduler/internal/scheduler"
	"github.com/fundacion-cms/content-scheduler/internal/usecase"
	"github.com/spf13/cobra"
)

type openFunc func(ctx context.Context) (*backend.Stores, func(), error)

// cli holds what every subcommand needs once the store is open.
type cli struct {
	open    openFunc
	logger  *slog.Logger
	uc      *usecase.ScheduleUsecase
	close   func()
	jsonOut bool
}

// newRootCmd builds the command tree. The returned func closes the store once
// Execute returns; cobra skips post-run hooks when a command fails.
func newRootCmd(open openFunc, logger *slog.Logger) (*cobra.Command, func()) {
	c := &cli{open: open, logger: logger}

	root := &cobra.Command{
		Use:          "schedctl",
		Short:        "Operate the content publication scheduler",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			stores, closeFn, err := c.open(cmd.Context())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			executor := scheduler.NewExecutor(stores.Schedules, stores.Contents, c.logger)
			poller := scheduler.NewPoller(stores.Schedules, executor, nil, c.logger, 0)
			c.uc = usecase.NewScheduleUsecase(stores.Schedules, executor, poller, c.logger)
			c.close = closeFn
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		c.processCmd(),
		c.executeCmd(),
		c.retryCmd(),
		c.cancelCmd(),
		c.listCmd(),
		c.statsCmd(),
	)
	return root, c.shutdown
}

func (c *cli) shutdown() {
	if c.close != nil {
		c.close()
		c.close = nil
	}
}

func (c *cli) processCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Execute due pending schedules once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := c.uc.ProcessPending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "processed: %d\nfailed: %d\nskipped: %d\n", summary.Processed, summary.Failed, summary.Skipped)
			for _, e := range summary.Errors {
				fmt.Fprintf(out, "  %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", scheduler.DefaultBatchSize, "Maximum schedules to execute")
	return cmd
}

func (c *cli) executeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <schedule-id>",
		Short: "Execute a pending schedule now, ignoring its date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.uc.ExecuteNow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printSchedule(cmd.OutOrStdout(), s)
		},
	}
}

func (c *cli) retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <schedule-id>",
		Short: "Re-run a failed schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.uc.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printSchedule(cmd.OutOrStdout(), s)
		},
	}
}

func (c *cli) cancelCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "cancel <schedule-id>",
		Short: "Cancel a pending schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.uc.Cancel(cmd.Context(), args[0], actor); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "User id recorded as cancelling the schedule")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var (
		input   usecase.ListSchedulesInput
		status  string
		ctype   string
		action  string
		dueOnly bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules, soonest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input.Status = domain.Status(status)
			input.ContentType = domain.ContentType(ctype)
			input.Action = domain.Action(action)
			if dueOnly {
				now := time.Now()
				input.Status = domain.StatusPending
				input.To = &now
			}

			result, err := c.uc.List(cmd.Context(), input)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tCONTENT\tACTION\tSCHEDULED\tSTATUS")
			for _, s := range result.Schedules {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.ContentType, s.ContentID, s.Action, s.ScheduledDate.Format(time.RFC3339), s.Status)
			}
			fmt.Fprintf(tw, "\npage %d/%d, %d total\n", result.Page, max(result.TotalPages, 1), result.Total)
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "", "Filter by status (pending, executed, failed, cancelled)")
	f.StringVar(&ctype, "content-type", "", "Filter by content type (news, program, publication)")
	f.StringVar(&action, "action", "", "Filter by action (publish, unpublish, archive)")
	f.StringVar(&input.ContentID, "content-id", "", "Filter by content id")
	f.StringVar(&input.Search, "search", "", "Substring match on content id, creator or failure reason")
	f.BoolVar(&dueOnly, "due", false, "Only pending schedules whose date has passed")
	f.IntVar(&input.Page, "page", 1, "Page number")
	f.IntVar(&input.Limit, "limit", 20, "Page size (max 100)")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show schedule counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.uc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d (due now: %d)\nexecuted: %d\nfailed: %d\ncancelled: %d\ntotal: %d\n",
				st.Pending, st.DueNow, st.Executed, st.Failed, st.Cancelled, st.Total())
			return nil
		},
	}
}

func (c *cli) printSchedule(w io.Writer, s *domain.Schedule) error {
	if c.jsonOut {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "%s %s %s/%s: %s\n", s.ID, s.Action, s.ContentType, s.ContentID, s.Status)
	if s.FailureReason != nil {
		fmt.Fprintf(w, "  reason: %s\n", *s.FailureReason)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

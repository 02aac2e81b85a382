package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/mailrelay/internal/bootstrap"
	"github.com/target/mailrelay/internal/domain/model"
)

// withStateStore opens the configured store for the duration of f.
func withStateStore(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, bootstrap.StateStore) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	store, closer, err := openStateStore(cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closer(); cerr != nil {
			cmdCtx.Logger.Warn("close state store failed", "error", cerr)
		}
	}()

	return f(ctx, store)
}

func runState(cmdCtx *commandContext, args []string) error {
	opts, err := parseStateFlags(args)
	if err != nil {
		return err
	}
	return withStateStore(cmdCtx, opts.Timeout, func(ctx context.Context, store bootstrap.StateStore) error {
		st, loadErr := store.Load(ctx)
		if loadErr != nil {
			return fmt.Errorf("load dispatch state: %w", loadErr)
		}
		if opts.JSON {
			return printStateJSON(os.Stdout, st)
		}
		return printState(os.Stdout, st)
	})
}

func printStateJSON(w io.Writer, st *model.DispatchState) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encode dispatch state: %w", err)
	}
	return nil
}

func printState(w io.Writer, st *model.DispatchState) error {
	status := "idle"
	if st.IsRunning {
		status = "running"
	}
	jobID := st.JobID
	if jobID == "" {
		jobID = "-"
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Status", status},
		{"Job", jobID},
		{"Sent", strconv.Itoa(st.Stats.EmailsSent)},
		{"Failed", strconv.Itoa(st.Stats.EmailsFailed)},
		{"Total", strconv.Itoa(st.Stats.TotalRecipients)},
		{"Pending", strconv.Itoa(max(st.Stats.TotalRecipients-st.Stats.Processed(), 0))},
		{"Log entries", strconv.Itoa(len(st.Logs))},
	}
	for _, row := range rows {
		if err := writef(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("write state row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush state table: %w", err)
	}

	if len(st.FailedRecipients) == 0 {
		return nil
	}
	if err := writeln(w, "\nFailed recipients:"); err != nil {
		return err
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "EMAIL\tERROR\tAT"); err != nil {
		return fmt.Errorf("write failure header row: %w", err)
	}
	for _, f := range st.FailedRecipients {
		if err := writef(tw, "%s\t%s\t%s\n", f.Address, f.ErrorMessage, formatTime(f.Timestamp)); err != nil {
			return fmt.Errorf("write failure row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush failure table: %w", err)
	}
	return nil
}

func runLogs(cmdCtx *commandContext, args []string) error {
	opts, err := parseLogsFlags(args)
	if err != nil {
		return err
	}
	return withStateStore(cmdCtx, opts.Timeout, func(ctx context.Context, store bootstrap.StateStore) error {
		st, loadErr := store.Load(ctx)
		if loadErr != nil {
			return fmt.Errorf("load dispatch state: %w", loadErr)
		}
		return printLogs(os.Stdout, filterLogs(st.Logs, opts))
	})
}

// filterLogs keeps entries of opts.Level, then the newest opts.Limit of them.
func filterLogs(logs []model.LogEntry, opts logsOptions) []model.LogEntry {
	level := strings.ToLower(strings.TrimSpace(opts.Level))
	out := make([]model.LogEntry, 0, len(logs))
	for _, entry := range logs {
		if level != "" && string(entry.Level) != level {
			continue
		}
		out = append(out, entry)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out
}

func printLogs(w io.Writer, logs []model.LogEntry) error {
	if len(logs) == 0 {
		return writeln(w, "No log entries.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "TIME\tLEVEL\tMESSAGE"); err != nil {
		return fmt.Errorf("write log header row: %w", err)
	}
	for _, entry := range logs {
		if err := writef(tw, "%s\t%s\t%s\n", formatTime(entry.Timestamp), entry.Level, entry.Message); err != nil {
			return fmt.Errorf("write log row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush log table: %w", err)
	}
	return nil
}

func runReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseResetFlags(args)
	if err != nil {
		return err
	}
	return withStateStore(cmdCtx, opts.Timeout, func(ctx context.Context, store bootstrap.StateStore) error {
		cleared, resetErr := resetState(ctx, store, opts, os.Stdin, os.Stdout)
		if resetErr != nil {
			return resetErr
		}
		if cleared {
			cmdCtx.Logger.InfoContext(ctx, "dispatch state reset", "store_driver", cmdCtx.Config.Store.Driver)
		}
		return nil
	})
}

// resetState clears the stored state after confirmation. A state marked running is only cleared
// with --force because the owning process may still be sending.
func resetState(ctx context.Context, store bootstrap.StateStore, opts resetOptions, in io.Reader, out io.Writer) (bool, error) {
	st, err := store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load dispatch state: %w", err)
	}
	if st.IsRunning && !opts.Force {
		return false, fmt.Errorf(
			"job %s is marked running (%d of %d processed); stop it first or re-run with --force",
			st.JobID, st.Stats.Processed(), st.Stats.TotalRecipients,
		)
	}

	if !opts.Yes {
		if err := writef(out, "About to delete the dispatch state (%d sent, %d failed, %d log entries).\n",
			st.Stats.EmailsSent, st.Stats.EmailsFailed, len(st.Logs)); err != nil {
			return false, fmt.Errorf("print confirmation message: %w", err)
		}
		if err := confirm(in, out); err != nil {
			return false, err
		}
	}

	if err := store.Clear(ctx); err != nil {
		return false, fmt.Errorf("clear dispatch state: %w", err)
	}
	if err := writeln(out, "Dispatch state cleared."); err != nil {
		return true, err
	}
	return true, nil
}

var errAborted = errors.New("aborted by user")

func confirm(in io.Reader, out io.Writer) error {
	if err := write(out, "Continue? [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errAborted
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

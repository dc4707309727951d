package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/agentcore/internal/agent"
	"github.com/flynn-ai/agentcore/internal/checkpoint"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect stored conversation threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads, most recently updated first",
	RunE:  runThreadsList,
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show a thread's checkpoint history",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsShow,
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete every checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsDelete,
}

var (
	threadsLimit    int
	threadsMessages bool
)

func init() {
	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsDeleteCmd)

	threadsShowCmd.Flags().IntVar(&threadsLimit, "limit", 20, "Maximum checkpoints to show (0 for all)")
	threadsShowCmd.Flags().BoolVar(&threadsMessages, "messages", false, "Print the head checkpoint's messages")
}

func openCheckpoints() (*checkpoint.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return checkpoint.OpenSQLite(cfg.Storage.CheckpointDB, newLogger(cfg.Log, os.Stderr))
}

func runThreadsList(cmd *cobra.Command, args []string) error {
	store, err := openCheckpoints()
	if err != nil {
		return err
	}
	defer store.Close()

	threads, err := store.ListThreads(cmd.Context())
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Println("No threads.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THREAD\tCHECKPOINTS\tUPDATED")
	for _, t := range threads {
		fmt.Fprintf(w, "%s\t%d\t%s\n", t.ThreadID, t.Checkpoints, t.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runThreadsShow(cmd *cobra.Command, args []string) error {
	store, err := openCheckpoints()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	cps, err := store.List(ctx, args[0], checkpoint.ListOptions{Limit: threadsLimit})
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		return fmt.Errorf("thread %s: %w", args[0], checkpoint.ErrNotFound)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECKPOINT\tSTATUS\tITERATIONS\tMODEL\tCREATED")
	for _, cp := range cps {
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%s\n",
			cp.ID, cp.Metadata["status"], cp.Metadata["iterations"], cp.Metadata["model"],
			cp.CreatedAt.Local().Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if threadsMessages {
		return printMessages(ctx, store, args[0])
	}
	return nil
}

func printMessages(ctx context.Context, store checkpoint.Store, threadID string) error {
	head, err := store.Get(ctx, threadID, "")
	if err != nil {
		return err
	}
	var st agent.TurnState
	if err := json.Unmarshal(head.State, &st); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	fmt.Println()
	for _, m := range st.Messages {
		switch {
		case len(m.ToolCalls) > 0:
			for _, tc := range m.ToolCalls {
				fmt.Printf("[%s] -> %s(%s)\n", m.Role, tc.Name, tc.ID)
			}
			if m.Content != "" {
				fmt.Printf("[%s] %s\n", m.Role, m.Content)
			}
		default:
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
	}
	for _, tc := range st.PendingToolCalls {
		fmt.Printf("[pending] %s(%s)\n", tc.Name, tc.ID)
	}
	return nil
}

func runThreadsDelete(cmd *cobra.Command, args []string) error {
	store, err := openCheckpoints()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteThread(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted thread %s\n", args[0])
	return nil
}

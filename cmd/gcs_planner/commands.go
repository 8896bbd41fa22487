package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/gcsplan/planner/internal/api"
	"github.com/gcsplan/planner/pkg/core"
	"github.com/spf13/cobra"
)

var (
	listJSON  bool
	selectRef []string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored waypoints",
	Args:  cobra.NoArgs,
	RunE: withServices(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
		ws := svc.Engine.ListWaypoints()
		if listJSON {
			return writeJSON(cmd.OutOrStdout(), ws)
		}
		return writeTable(cmd.OutOrStdout(), ws)
	}),
}

var renameCmd = &cobra.Command{
	Use:   "rename <id-or-name> <new-name>",
	Short: "Rename a waypoint",
	Args:  cobra.ExactArgs(2),
	RunE: withServices(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
		w, err := svc.Engine.Resolve(args[0])
		if err != nil {
			return err
		}
		w, err = svc.Engine.RenameWaypoint(w.ID, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %q\n", w.ID, w.Name)
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id-or-name>...",
	Short: "Delete waypoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: withServices(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
		for _, ref := range args {
			w, err := svc.Engine.Resolve(ref)
			if err != nil {
				return err
			}
			if _, err := svc.Engine.DeleteWaypoint(w.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", w.Name)
		}
		return nil
	}),
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every waypoint",
	Args:  cobra.NoArgs,
	RunE: withServices(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d waypoints\n", svc.Engine.ClearAll())
		return nil
	}),
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Delete per-waypoint files that no longer match a stored waypoint",
	Args:  cobra.NoArgs,
	RunE: withServices(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
		// startup already reconciled once; this reports a clean directory
		removed, err := svc.Engine.Reconcile()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d orphan files removed\n", len(removed))
		return nil
	}),
}

var sendCmd = &cobra.Command{
	Use:   "send <command text>",
	Short: "Send a free-text command with selected waypoints to the mission backend",
	Args:  cobra.MinimumNArgs(1),
	RunE: withServices(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
		if err := selectRefs(svc); err != nil {
			return err
		}
		res, err := svc.Engine.SendCommand(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res)
	}),
}

var batchCmd = &cobra.Command{
	Use:   "batch <mission-name>",
	Short: "Send selected waypoints to the mission backend as a named batch",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
		if len(selectRef) == 0 {
			for _, w := range svc.Engine.ListWaypoints() {
				selectRef = append(selectRef, w.ID)
			}
		}
		if err := selectRefs(svc); err != nil {
			return err
		}
		res, err := svc.Engine.SendBatch(ctx, args[0])
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res)
	}),
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the mission backend",
	Args:  cobra.NoArgs,
	RunE: withServices(func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error {
		if err := svc.Engine.Healthcheck(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}),
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
	sendCmd.Flags().StringSliceVar(&selectRef, "select", nil, "waypoint ids or names to send as selected")
	batchCmd.Flags().StringSliceVar(&selectRef, "select", nil, "waypoint ids or names to include (default all)")
}

// withServices builds the engine without the monitor loop, runs fn and waits
// for persistence before closing.
func withServices(fn func(ctx context.Context, cmd *cobra.Command, svc *services, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		svc, err := newServices(ctx, engineOptions{})
		if err != nil {
			return err
		}
		defer svc.Close()
		return fn(ctx, cmd, svc, args)
	}
}

func selectRefs(svc *services) error {
	for _, ref := range selectRef {
		w, err := svc.Engine.Resolve(strings.TrimSpace(ref))
		if err != nil {
			return err
		}
		if err := svc.Engine.Select(w.ID); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, ws []core.Waypoint) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tPOINTS\tAREA (m²)\tID")
	for _, wp := range ws {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f\t%s\n", wp.Name, wp.Kind, wp.Metadata.PointCount, wp.Metadata.Area, wp.ID)
	}
	return tw.Flush()
}

func writeResult(w io.Writer, res api.Result) error {
	if json.Valid(res.Body) {
		var v any
		_ = json.Unmarshal(res.Body, &v)
		return writeJSON(w, v)
	}
	_, err := fmt.Fprintf(w, "%s\n", res.Body)
	return err
}

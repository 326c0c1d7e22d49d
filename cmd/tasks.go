package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/formatter"
	"github.com/desertthunder/mpsync/internal/shared"
)

// TasksHistory prints recorded batch runs, newest first.
func (r *Runner) TasksHistory(ctx context.Context, cmd *cli.Command) error {
	criteria := map[string]any{"limit": cmd.Int("limit")}
	if t := cmd.String("type"); t != "" {
		criteria["type"] = t
	}
	if s := cmd.String("status"); s != "" {
		criteria["status"] = s
	}

	runs, err := r.runs.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if path := cmd.String("output"); path != "" {
		format = formatter.FormatForPath(path)
	}

	data, err := formatter.Runs(format, runs)
	if err != nil {
		return err
	}
	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteFile(path, data); err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d runs to %s\n", len(runs), path)
	}
	return r.writePlain("%s", data)
}

// TasksRemove deletes a recorded batch run from the history.
func (r *Runner) TasksRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if err := r.runs.Delete(id); err != nil {
		return err
	}
	return r.writePlain("✓ Removed run %s\n", id)
}

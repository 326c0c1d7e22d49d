package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/formatter"
	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/server"
	"github.com/desertthunder/mpsync/internal/shared"
	"github.com/desertthunder/mpsync/internal/tasks"
	"github.com/desertthunder/mpsync/internal/ui"
)

const tuiLogPath = "./tmp/mpsync-tui.log"

// batchFlags are shared by every command that starts a batch.
func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "delay",
			Usage: "Pause between items in milliseconds (0 uses the config, -1 disables it)",
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "Serve the task API on this address while the batch runs",
		},
		&cli.BoolFlag{
			Name:  "monitor",
			Usage: "Show the task monitor while the batch runs",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Also write the result to a file (.md, .csv or .txt)",
		},
	}
}

type batchFunc func(ctx context.Context, opts tasks.Options) (*models.BatchResult, error)

func batchOptions(cmd *cli.Command) tasks.Options {
	var opts tasks.Options
	switch d := cmd.Int("delay"); {
	case d < 0:
		opts.Delay = -1
	case d > 0:
		opts.Delay = time.Duration(d) * time.Millisecond
	}
	return opts
}

// runBatch runs fn with progress reporting. Progress goes to the output, or to the task
// monitor with --monitor. With --listen the task API is served until fn returns.
func (r *Runner) runBatch(ctx context.Context, cmd *cli.Command, fn batchFunc) (*models.BatchResult, error) {
	opts := batchOptions(cmd)

	monitor := cmd.Bool("monitor")
	if monitor {
		fileLogger, err := shared.NewFileLogger(tuiLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}

	if addr := cmd.String("listen"); addr != "" {
		serveCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			router := server.NewRouter(r.registry, r.sessions, 0, r.logger)
			if err := server.Serve(serveCtx, addr, router, r.logger); err != nil {
				r.logger.Warn("task API stopped", "addr", addr, "error", err)
			}
		}()
	}

	if monitor {
		return r.runMonitored(ctx, opts, fn)
	}

	progress := make(chan tasks.ProgressUpdate, 32)
	opts.Progress = progress

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.writeProgress(update)
		}
	}()

	result, err := fn(ctx, opts)
	close(progress)
	wg.Wait()
	return result, err
}

func (r *Runner) writeProgress(u tasks.ProgressUpdate) {
	if u.Total > 0 && u.Phase != tasks.Prepare && u.Phase != tasks.Finish {
		r.writePlain("[%d/%d] %s\n", u.Step, u.Total, u.Message)
		return
	}
	r.writePlain("%s\n", u.Message)
}

// runMonitored runs fn in the background behind the task monitor. Quitting the monitor
// before fn returns cancels the batch.
func (r *Runner) runMonitored(ctx context.Context, opts tasks.Options, fn batchFunc) (*models.BatchResult, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result *models.BatchResult
		err    error
	}
	done := make(chan outcome, 1)

	model := ui.NewModel(batchCtx, r.registry)
	defer model.Close()

	go func() {
		res, err := fn(batchCtx, opts)
		done <- outcome{res, err}
	}()

	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	select {
	case o := <-done:
		return o.result, o.err
	default:
		cancel()
		o := <-done
		return o.result, o.err
	}
}

// writeResult prints a batch result and, with --output, exports it.
func (r *Runner) writeResult(cmd *cli.Command, title string, result *models.BatchResult) error {
	if result == nil {
		return nil
	}

	if path := cmd.String("output"); path != "" {
		data, err := formatter.Result(formatter.FormatForPath(path), title, result)
		if err != nil {
			return err
		}
		if err := formatter.WriteFile(path, data); err != nil {
			return err
		}
		r.logger.Info("result saved", "path", path)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	data, err := formatter.ResultToText(title, result)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/repositories"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/session"
	"github.com/desertthunder/mpsync/internal/shared"
	"github.com/desertthunder/mpsync/internal/tasks"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	db         *sql.DB
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	accounts *repositories.AccountRepository
	cookies  *repositories.CookieRepository
	storage  *repositories.LocalStorageRepository
	runs     *repositories.BatchRunRepository

	sessions  *session.Manager
	transport *services.HTTPTransport
	gateway   *services.Gateway
	registry  *tasks.Registry
	batcher   *tasks.Batcher
	backend   *services.BackendClient
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	DB         *sql.DB
	HTTPClient *http.Client
	Backend    *services.BackendClient
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration.
//
// Without a DB the database at config.Database.Path is opened on first use.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: time.Duration(opts.Config.Platform.RequestTimeoutS) * time.Second}
	}

	r := &Runner{
		config:     opts.Config,
		db:         opts.DB,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		backend:    opts.Backend,
	}
	if r.backend == nil && r.config.Backend.URL != "" {
		r.backend = services.NewBackendClient(context.Background(), r.config.Backend.URL, r.config.Backend.Token, r.logger)
	}
	r.wire()
	return r
}

// wire builds the component graph from the current db and logger.
func (r *Runner) wire() {
	r.accounts = repositories.NewAccountRepository(r.db)
	r.cookies = repositories.NewCookieRepository(r.db)
	r.storage = repositories.NewLocalStorageRepository(r.db)
	r.runs = repositories.NewBatchRunRepository(r.db)

	r.sessions = session.NewManager(r.cookies, r.storage, r.logger)
	r.transport = services.NewHTTPTransport(r.httpClient, r.config.Whitelist.Domains, r.logger)
	r.gateway = services.NewGateway(r.transport, services.NewAccountResolver(r.accounts), services.GatewayConfigFrom(r.config), r.logger)

	r.registry = tasks.NewRegistry(r.transport, r.logger)
	runner := tasks.NewRunner(r.registry, shared.Millis(r.config.Batch.PausePollMS), r.logger)
	if r.db != nil {
		runner.SetRecorder(r.runs)
	}
	r.batcher = tasks.NewBatcher(runner, r.gateway, tasks.DelaysFrom(r.config), r.logger)
	r.batcher.SetQRSettings(tasks.QRSettings{
		Timeout:  time.Duration(r.config.Polling.QRCodeTimeoutS) * time.Second,
		Interval: shared.Millis(r.config.Polling.QRCodeIntervalMS),
	})
}

// SetLogger swaps the logger of every component.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
	r.wire()
}

// connect opens the database without touching its schema.
func (r *Runner) connect() error {
	if r.db != nil {
		return nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.db = db
	r.wire()
	return nil
}

// open connects to the database and applies pending migrations.
func (r *Runner) open() error {
	if err := r.connect(); err != nil {
		return err
	}
	if err := shared.RunMigrations(r.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// withDB opens the database before running action.
func (r *Runner) withDB(action cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := r.open(); err != nil {
			return err
		}
		return action(ctx, cmd)
	}
}

// withConn connects to the database, leaving migrations to action.
func (r *Runner) withConn(action cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := r.connect(); err != nil {
			return err
		}
		return action(ctx, cmd)
	}
}

// Close releases the database.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, accountsCommand, draftsCommand, publishCommand, qrcodeCommand, authCommand, tasksCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

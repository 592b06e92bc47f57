package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wavebind/catalog"
	"wavebind/history"
	"wavebind/logger"
	"wavebind/settings"
	"wavebind/task"
	"wavebind/wavebase"
)

const usage = `usage: wavebind [-config config.toml] <command> [args]

commands:
  categories                  list model categories
  models <category>           list the models of a category
  schema <model>              show a model's parsed parameters in slot order
  bind <model> [name=value]   bind a model onto a task node and show its state
  transform <model> [...]     show the rewritten saved-workflow form
  prompt <model> [...]        show the execution request
  queue <model> [...]         queue the task on ComfyUI and follow it
  submit <model> [...]        submit the task to WaveSpeed and wait for its outputs
  status [-wait] <task-id>    check a submitted task
  resolve [param_N=value]     resolve request_json/param_map as the backend does
  history [clear]             list or clear remembered models
`

// app holds the collaborators every command shares.
type app struct {
	config  *settings.Config
	db      *wavebase.DB
	catalog *catalog.Client
	history *history.Cache
	tasks   *task.Client
}

func main() {
	configPath := flag.String("config", "config.toml", "path to config.toml")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	config, err := settings.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(config.Logging)

	a, err := newApp(config)
	if err != nil {
		logger.Fatal("Failed to start", "error", err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("Command failed", "command", flag.Arg(0), "error", err)
		a.close()
		os.Exit(1)
	}
}

func newApp(config *settings.Config) (*app, error) {
	a := &app{config: config, tasks: task.NewClient(config.Task)}

	if config.Store.Path != "" {
		db, err := wavebase.Open(config.Store.Path, config.Store.MaxValueSize)
		if err != nil {
			return nil, err
		}
		if config.Store.MergeHours > 0 {
			db.MergeEvery(time.Duration(config.Store.MergeHours) * time.Hour)
		}
		a.db = db
		a.catalog = catalog.NewClient(config.Catalog, db)
		a.history = history.New(config.Engine.HistorySize, db)
		return a, nil
	}

	logger.Warn("No store path configured, history and catalog responses are kept in memory only")
	a.catalog = catalog.NewClient(config.Catalog, nil)
	a.history = history.New(config.Engine.HistorySize, nil)
	return a, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
	a.db = nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "categories":
		return a.categories(ctx)
	case "models":
		return a.models(ctx, args)
	case "schema":
		return a.schema(ctx, args)
	case "bind":
		return a.bind(ctx, args)
	case "transform":
		return a.transform(ctx, args)
	case "prompt":
		return a.prompt(ctx, args)
	case "queue":
		return a.queue(ctx, args)
	case "submit":
		return a.submit(ctx, args)
	case "status":
		return a.status(ctx, args)
	case "resolve":
		return a.resolve(args)
	case "history":
		return a.showHistory(args)
	}
	flag.Usage()
	return fmt.Errorf("unknown command %q", command)
}

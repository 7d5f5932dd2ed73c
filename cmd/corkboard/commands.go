package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/corkboardapp/corkboard/internal/board"
	"github.com/corkboardapp/corkboard/internal/config"
	"github.com/corkboardapp/corkboard/internal/generate"
	"github.com/corkboardapp/corkboard/internal/httpapi"
	"github.com/corkboardapp/corkboard/internal/notify"
	"github.com/corkboardapp/corkboard/internal/outbox"
	"github.com/corkboardapp/corkboard/internal/printer"
	"github.com/corkboardapp/corkboard/internal/ratelimit"
)

var (
	sqlBoard   string
	sqlServer  string
	tasksBoard string
	logsBoard  string
	logsLimit  int
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the board engine",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	sqlCmd := &cobra.Command{
		Use:   "sql STATEMENT [PARAM...]",
		Short: "Queue a mutation through the local outbox",
		Long: `Persists a mutation in the local outbox, then delivers it to the
engine. The mutation survives a crash or offline period and is
retried until the transport confirms the send.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSQL,
	}
	sqlCmd.Flags().StringVar(&sqlBoard, "board", httpapi.DefaultBoard, "board id")
	sqlCmd.Flags().StringVar(&sqlServer, "server", "", "engine URL (default from config)")
	rootCmd.AddCommand(sqlCmd)

	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "List scheduled tasks",
		RunE:  runTasks,
	}
	tasksCmd.Flags().StringVar(&tasksBoard, "board", httpapi.DefaultBoard, "board id")
	rootCmd.AddCommand(tasksCmd)

	logsCmd := &cobra.Command{
		Use:   "logs TASK",
		Short: "Show the execution log of a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	logsCmd.Flags().StringVar(&logsBoard, "board", httpapi.DefaultBoard, "board id")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "max entries")
	rootCmd.AddCommand(logsCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("loading config: %v", err)
	}

	limiter := ratelimit.NewBucket(cfg.Notify.BurstCap, cfg.Notify.TokensPerS/1000)
	registry := board.NewRegistry(board.RegistryConfig{
		DataDir:   cfg.General.DataDir,
		Batch:     cfg.Batch,
		Sched:     cfg.Scheduler,
		Notifier:  buildNotifier(cfg),
		Generator: generate.NewExecutor(cfg.Generation.Endpoint, cfg.Generation.APIKey, cfg.Generation.Models),
		Limiter:   limiter,
	})
	defer registry.CloseAll()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := httpapi.NewServer(registry, addr)

	// Hot-reload notification settings on config file changes.
	watchPath := configPath
	if watchPath == "" {
		watchPath = config.DefaultConfigPath()
	}
	watcher, err := config.Watch(watchPath, func(next *config.Config) {
		registry.SetNotifier(buildNotifier(next))
	})
	if err != nil {
		printer.Warning("config watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	printer.Step("listening on %s", addr)

	var g errgroup.Group
	g.Go(server.Start)
	return g.Wait()
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notify.WebhookURL == "" {
		return notify.NoopNotifier{}
	}
	return notify.NewWebhookNotifier(cfg.Notify.WebhookURL)
}

func runSQL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return printer.Error("creating data dir: %v", err)
	}
	ob, err := outbox.Open(filepath.Join(cfg.General.DataDir, "outbox.db"))
	if err != nil {
		return printer.Error("opening outbox: %v", err)
	}
	defer ob.Close()

	params := make([]any, len(args)-1)
	for i, p := range args[1:] {
		params[i] = p
	}

	serverURL := sqlServer
	if serverURL == "" {
		serverURL = fmt.Sprintf("ws://%s:%d/ws?board=%s", cfg.Server.Host, cfg.Server.Port, sqlBoard)
	}

	client, err := outbox.NewClient(outbox.ClientConfig{
		ServerURL:     serverURL,
		Outbox:        ob,
		FlushInterval: time.Duration(cfg.Outbox.FlushSecs) * time.Second,
		FlushLimit:    cfg.Outbox.FlushLimit,
	})
	if err != nil {
		return printer.Error("creating client: %v", err)
	}
	defer client.Stop()

	if _, err := ob.Enqueue(args[0], params); err != nil {
		return printer.Error("queueing mutation: %v", err)
	}

	// Best effort delivery now; a failure leaves the mutation queued for
	// the next invocation.
	if err := client.Connect(); err != nil {
		printer.Warning("engine unreachable, mutation stays queued: %v", err)
		return nil
	}
	if err := client.Flush(); err != nil {
		printer.Warning("delivery incomplete, remainder stays queued: %v", err)
		return nil
	}

	pending, err := ob.PendingCount()
	if err == nil && pending == 0 {
		printer.Success("mutation delivered")
	}
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("loading config: %v", err)
	}

	var tasks []httpapi.TaskResponse
	if err := getJSON(cfg, "/api/tasks?board="+tasksBoard, &tasks); err != nil {
		return printer.Error("listing tasks: %v", err)
	}
	if len(tasks) == 0 {
		printer.Info("no scheduled tasks")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROMPT\tCRON\tENABLED\tLAST RUN\tNEXT RUN")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
			t.ID, t.PromptID, t.CronSpec, t.Enabled, t.LastRun, t.NextRun)
	}
	return w.Flush()
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("loading config: %v", err)
	}

	path := fmt.Sprintf("/api/logs?board=%s&task=%s&limit=%d", logsBoard, args[0], logsLimit)
	var entries []httpapi.TaskLogResponse
	if err := getJSON(cfg, path, &entries); err != nil {
		return printer.Error("fetching logs: %v", err)
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s [%s] %dms %s", e.ExecutedAt, e.Status, e.DurationMs, e.Output)
		if e.Status == "error" {
			printer.Warning("%s", line)
		} else {
			printer.Info("%s", line)
		}
	}
	return nil
}

func getJSON(cfg *config.Config, path string, out any) error {
	url := fmt.Sprintf("http://%s:%d%s", cfg.Server.Host, cfg.Server.Port, path)
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

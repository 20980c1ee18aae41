package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"replaylab/internal/archive"
	"replaylab/internal/checkpoint"
	"replaylab/internal/compare"
	"replaylab/internal/config"
	"replaylab/internal/executor"
	"replaylab/internal/models"
	"replaylab/internal/replay"
	"replaylab/internal/runner"
	"replaylab/internal/runstore"
	"replaylab/internal/usage"
)

const usageText = `replaylab - fork archived agent conversations and compare continuations

Usage:
  replaylab list [-project filter] [-limit n]       list archived conversations
  replaylab inspect <session-id> [-save-step n]     show a conversation's steps
  replaylab run -config file -conversation id -step n [-scheduler name]
                                                    fork and execute branches
  replaylab compare <run-id>                        render a stored run's report
  replaylab status [run-id]                         list runs or show one run
  replaylab watch                                   follow archive changes
  replaylab models                                  list known model IDs
  replaylab usage [-sessions]                       archive token usage totals

Flags for each command are listed with: replaylab <command> -h
`

func main() {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = cmdList(os.Args[2:])
	case "inspect":
		err = cmdInspect(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "compare":
		err = cmdCompare(os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "watch":
		err = cmdWatch(os.Args[2:])
	case "models":
		err = cmdModels(os.Args[2:])
	case "usage":
		err = cmdUsage(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usageText)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openArchive(dir string) *archive.Archive {
	if dir == "" {
		dir = archive.DefaultPath()
	}
	return archive.New(dir)
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	archiveDir := fs.String("archive", "", "archive directory (default: standard location)")
	project := fs.String("project", "", "filter by project path substring")
	limit := fs.Int("limit", 20, "maximum conversations to show")
	fs.Parse(args)

	a := openArchive(*archiveDir)
	infos, err := a.List(*project, *limit)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No conversations found in", a.Root())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tPROJECT\tMESSAGES\tLAST ACTIVITY")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			info.SessionID, info.ProjectPath, info.MessageCount, info.LastTimestamp)
	}
	return w.Flush()
}

func cmdInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	archiveDir := fs.String("archive", "", "archive directory")
	saveStep := fs.Int("save-step", 0, "also save a checkpoint at this step")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: replaylab inspect <session-id>")
	}
	sessionID := fs.Arg(0)

	a := openArchive(*archiveDir)
	conv, err := a.Load(sessionID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("conversation not found: %s", sessionID)
	}

	fmt.Printf("Conversation %s (%d steps)\n", conv.SessionID, conv.StepCount())
	if conv.ProjectPath != "" {
		fmt.Printf("Project: %s\n", conv.ProjectPath)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tROLE\tTOOLS\tCONTENT")
	for i, msg := range conv.Messages {
		tools := ""
		if n := len(msg.ToolCalls); n > 0 {
			tools = fmt.Sprintf("%d call(s)", n)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, msg.Role, tools, preview(msg.Content, 80))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if *saveStep > 0 {
		cp, err := checkpoint.Create(conv, *saveStep)
		if err != nil {
			return err
		}
		paths, err := config.LoadPaths()
		if err != nil {
			return err
		}
		storage := checkpoint.NewStorage(paths.CheckpointsDir)
		path := storage.Path(cp.ConversationID, cp.Step)
		if err := storage.Save(cp, path); err != nil {
			return err
		}
		fmt.Printf("\nCheckpoint saved: %s\n", path)
	}
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	archiveDir := fs.String("archive", "", "archive directory")
	configPath := fs.String("config", "", "branch configuration file (YAML)")
	conversationID := fs.String("conversation", "", "conversation to fork")
	step := fs.Int("step", 0, "fork point (1-based step index)")
	schedulerName := fs.String("scheduler", "parallel", "scheduler: parallel, serial or durable")
	baseURL := fs.String("base-url", "", "override the completion API base URL")
	fs.Parse(args)

	if *configPath == "" || *conversationID == "" || *step == 0 {
		return fmt.Errorf("usage: replaylab run -config file -conversation id -step n")
	}

	registry := models.NewRegistry()
	cfg, err := config.Load(*configPath, registry)
	if err != nil {
		return err
	}

	paths, err := config.LoadPaths()
	if err != nil {
		return err
	}
	store, err := runstore.Open(paths.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	backend := executor.NewAnthropicBackend(*baseURL, "")
	branchTimeout := time.Duration(cfg.Settings.TimeoutSeconds) * time.Second

	var scheduler runner.Scheduler
	switch *schedulerName {
	case "parallel":
		scheduler = runner.NewParallel(backend, branchTimeout)
	case "serial":
		scheduler = runner.NewSerial(backend, branchTimeout)
	case "durable":
		scheduler = runner.NewDurable(backend, store, runner.DefaultRetryPolicy(), branchTimeout)
	default:
		return fmt.Errorf("unknown scheduler: %s (valid: parallel, serial, durable)", *schedulerName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(openArchive(*archiveDir), scheduler, store, cfg.Settings)
	result, err := r.Run(ctx, replay.ReplayRequest{
		ConversationID: *conversationID,
		ForkAtStep:     *step,
		Branches:       cfg.Branches,
	})
	if err != nil {
		return err
	}

	fmt.Print(compare.FormatMarkdown(result.Comparison))
	fmt.Printf("\nRun ID: %s\n", result.RunID)
	if result.OutputDir != "" {
		fmt.Printf("Results saved to: %s\n", result.OutputDir)
	}
	return nil
}

func cmdCompare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: replaylab compare <run-id>")
	}
	runID := fs.Arg(0)

	paths, err := config.LoadPaths()
	if err != nil {
		return err
	}
	store, err := runstore.Open(paths.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.GetRunResult(runID)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("no stored result for run: %s", runID)
	}

	fmt.Print(compare.FormatMarkdown(result))
	return nil
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum runs to show")
	fs.Parse(args)

	paths, err := config.LoadPaths()
	if err != nil {
		return err
	}
	store, err := runstore.Open(paths.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if fs.NArg() > 0 {
		return showRun(store, fs.Arg(0))
	}

	runs, err := store.ListRuns(*limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCONVERSATION\tSTEP\tSCHEDULER\tBRANCHES\tSTATUS\tCREATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
			run.ID, run.ConversationID, run.ForkStep, run.Scheduler,
			run.BranchCount, run.Status, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showRun(store *runstore.Store, runID string) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("Conversation: %s (fork at step %d)\n", run.ConversationID, run.ForkStep)
	fmt.Printf("Scheduler: %s, %d branches, status %s\n", run.Scheduler, run.BranchCount, run.Status)
	if run.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", run.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}

	attempts, err := store.ListAttempts(runID)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BRANCH\tATTEMPT\tSTATUS\tDURATION\tERROR")
	for _, at := range attempts {
		fmt.Fprintf(w, "%s\t%d\t%s\t%dms\t%s\n",
			at.BranchName, at.Attempt, at.Status, at.DurationMs, preview(at.Error, 60))
	}
	return w.Flush()
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	archiveDir := fs.String("archive", "", "archive directory")
	debounce := fs.Duration("debounce", 500*time.Millisecond, "event debounce window")
	fs.Parse(args)

	a := openArchive(*archiveDir)
	w, err := archive.NewWatcher(a, *debounce, func(e archive.SessionEvent) {
		log.Printf("[Watch] %s: session %s (%s)", e.Type, e.SessionID, e.ProjectPath)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Start(); err != nil {
		return err
	}
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", a.Root())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func cmdModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	fs.Parse(args)

	registry := models.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	for _, info := range registry.All() {
		id := info.ID
		if id == registry.Default() {
			id += " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, info.Name, info.Description)
	}
	return w.Flush()
}

func cmdUsage(args []string) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	archiveDir := fs.String("archive", "", "archive directory")
	sessions := fs.Bool("sessions", false, "show per-session breakdown")
	fs.Parse(args)

	dir := *archiveDir
	if dir == "" {
		dir = archive.DefaultPath()
	}
	collector := usage.NewCollector(dir)

	if *sessions {
		stats, err := collector.CollectSessionStats()
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("No usage data found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tMODEL\tTURNS\tINPUT\tOUTPUT\tTOTAL")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
				s.SessionID, s.Model, s.TurnCount, s.InputTokens, s.OutputTokens, s.TotalTokens)
		}
		return w.Flush()
	}

	stats, err := collector.CollectStats()
	if err != nil {
		return err
	}
	fmt.Printf("Sessions: %d\n", stats.TotalSessions)
	fmt.Printf("Tokens: %d total (%d input, %d output)\n\n",
		stats.TotalTokens, stats.TotalInputTokens, stats.TotalOutputTokens)

	if len(stats.ByModel) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSESSIONS\tINPUT\tOUTPUT\tTOTAL")
	for _, m := range stats.ByModel {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
			m.Model, m.SessionCount, m.TotalInputTokens, m.TotalOutputTokens, m.TotalTokens)
	}
	return w.Flush()
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Command pipeline runs the F&O trade processing pipeline: position and
// trade parsing, strategy assignment, deliverables, expiry delivery,
// reconciliation and the report dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/kpatel-quant/fnopipeline/internal/config"
	"github.com/kpatel-quant/fnopipeline/internal/dashboard"
	"github.com/kpatel-quant/fnopipeline/internal/notify"
	"github.com/kpatel-quant/fnopipeline/internal/pipeline"
	"github.com/kpatel-quant/fnopipeline/internal/storage"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Optional env file; absence is fine.
	_ = godotenv.Load()

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" {
		fmt.Println(version)
		return
	}

	app, err := newApp(cmd, args)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	if err := app.run(cmd); err != nil {
		app.logger.Fatalf("pipeline %s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: pipeline <command> [flags]

Commands:
  process       parse positions and trades, assign strategies, write stage outputs
  deliverables  compute pre/post-trade deliverables and intrinsic value
  expiry        settle expiring positions into delivery legs and ACM uploads
  recon         reconcile the internal book against a PMS statement
  brokers       match clearing trades against broker contract notes
  serve         run the dashboard and the scheduled end-of-day job
  version       print the build version

Run 'pipeline <command> -h' for command flags.`)
}

// app holds everything a subcommand needs after flag parsing.
type app struct {
	cfg      *config.Config
	store    storage.Interface
	pipe     *pipeline.Pipeline
	notifier notify.Notifier
	logger   *log.Logger

	account   string
	positions []string
	trades    []string
	statement string
	brokers   []string
	noEmail   bool
}

func newApp(cmd string, args []string) (*app, error) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	var (
		configPath = fs.String("config", "config.yaml", "path to configuration file")
		account    = fs.String("account", "", "counterparty code the input files belong to")
		positions  = fs.String("positions", "", "comma-separated position files (globs allowed)")
		trades     = fs.String("trades", "", "comma-separated clearing trade files (globs allowed)")
		statement  = fs.String("statement", "", "PMS position statement file")
		brokerList = fs.String("brokers", "", "comma-separated broker contract note files (globs allowed)")
		noEmail    = fs.Bool("no-email", false, "skip the completion email even when configured")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	logger := log.New(os.Stdout, "[PIPELINE] ", log.LstdFlags|log.Lshortfile)

	store, err := storage.NewStorage(filepath.Join(cfg.Paths.StateDir, "pipeline_state.json"))
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	a := &app{
		cfg:       cfg,
		store:     store,
		pipe:      pipeline.New(cfg, store, logger),
		notifier:  notify.NewSendGrid(cfg.Email, logger),
		logger:    logger,
		account:   *account,
		statement: *statement,
		noEmail:   *noEmail,
	}
	if a.account == "" && len(cfg.Accounts) > 0 {
		a.account = cfg.Accounts[0].CPCode
	}

	if a.positions, err = expandFiles(*positions); err != nil {
		return nil, err
	}
	if a.trades, err = expandFiles(*trades); err != nil {
		return nil, err
	}
	if a.brokers, err = expandFiles(*brokerList); err != nil {
		return nil, err
	}
	return a, nil
}

// expandFiles splits a comma-separated list and expands glob patterns,
// keeping literal paths that match nothing so the parser reports them.
func expandFiles(list string) ([]string, error) {
	var files []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		matches, err := filepath.Glob(part)
		if err != nil {
			return nil, fmt.Errorf("bad file pattern %q: %w", part, err)
		}
		if len(matches) == 0 {
			files = append(files, part)
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}

func (a *app) run(cmd string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "process":
		return a.finish(a.pipe.RunProcess(ctx, pipeline.ProcessInput{
			Account:       a.account,
			PositionFiles: a.positions,
			TradeFiles:    a.trades,
		}))
	case "deliverables":
		return a.finish(a.pipe.RunDeliverables(ctx, pipeline.DeliverablesInput{
			Account:       a.account,
			PositionFiles: a.positions,
			TradeFiles:    a.trades,
		}))
	case "expiry":
		return a.finish(a.pipe.RunExpiry(ctx, pipeline.ExpiryInput{
			Account:       a.account,
			PositionFiles: a.positions,
			TradeFiles:    a.trades,
		}))
	case "recon":
		return a.finish(a.pipe.RunPMSRecon(ctx, pipeline.PMSReconInput{
			Account:       a.account,
			PositionFiles: a.positions,
			TradeFiles:    a.trades,
			StatementFile: a.statement,
		}))
	case "brokers":
		return a.finish(a.pipe.RunBrokerRecon(ctx, pipeline.BrokerReconInput{
			Account:     a.account,
			TradeFiles:  a.trades,
			BrokerFiles: a.brokers,
		}))
	case "serve":
		return a.serve(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// finish emails the run outcome and surfaces the run error, if any.
func (a *app) finish(run *storage.RunSummary, err error) error {
	if run != nil && !a.noEmail {
		a.email(run)
	}
	return err
}

var emailSubjects = map[string]string{
	storage.KindProcess:      "Trade processing complete",
	storage.KindDeliverables: "Deliverables report ready",
	storage.KindExpiry:       "Expiry delivery generated",
	storage.KindRecon:        "PMS reconciliation complete",
	storage.KindBrokers:      "Broker reconciliation complete",
}

func (a *app) email(run *storage.RunSummary) {
	subject, ok := emailSubjects[run.Kind]
	if !ok {
		subject = "Pipeline run complete"
	}
	name := a.cfg.AccountName(run.Account)
	subject = fmt.Sprintf("%s - %s %s", subject, name, run.StartedAt.Format("02 Jan 2006"))
	if len(run.Errors) > 0 {
		subject += fmt.Sprintf(" (%d errors)", len(run.Errors))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s) for %s\n", run.RunID, run.Kind, name)
	fmt.Fprintf(&b, "Positions: %d, Trades: %d, Reversals: %d, Unmapped: %d\n",
		run.Positions, run.Trades, run.Reversals, run.Unmapped)
	if run.MatchRate > 0 {
		fmt.Fprintf(&b, "Match rate: %.2f%%\n", run.MatchRate)
	}
	for _, e := range run.Errors {
		fmt.Fprintf(&b, "ERROR: %s\n", e)
	}

	if err := a.notifier.Send(subject, b.String(), run.Outputs); err != nil {
		a.logger.Printf("sending run email: %v", err)
	}
}

// serve runs the dashboard and/or the scheduled end-of-day processing job,
// whichever the config enables, until interrupted.
func (a *app) serve(ctx context.Context) error {
	if !a.cfg.Dashboard.Enabled && !a.cfg.Schedule.Enabled {
		return fmt.Errorf("nothing to serve: enable dashboard or schedule in config")
	}

	var srv *dashboard.Server
	errCh := make(chan error, 1)
	if a.cfg.Dashboard.Enabled {
		srv = dashboard.NewServer(dashboard.Config{Port: a.cfg.Dashboard.Port},
			a.store, newLogrus(a.cfg.Environment.LogLevel))
		go func() { errCh <- srv.Start() }()
		a.logger.Printf("dashboard listening on :%d", a.cfg.Dashboard.Port)
	}

	var scheduler *cron.Cron
	if a.cfg.Schedule.Enabled {
		loc, err := time.LoadLocation(a.cfg.Schedule.Timezone)
		if err != nil {
			return fmt.Errorf("loading schedule timezone: %w", err)
		}
		scheduler = cron.New(cron.WithLocation(loc))
		if _, err := scheduler.AddFunc(a.cfg.Schedule.Cron, func() { a.scheduledRun(ctx) }); err != nil {
			return fmt.Errorf("bad schedule spec %q: %w", a.cfg.Schedule.Cron, err)
		}
		scheduler.Start()
		a.logger.Printf("scheduled run registered: %s (%s)", a.cfg.Schedule.Cron, a.cfg.Schedule.Timezone)
	}

	select {
	case <-ctx.Done():
		a.logger.Println("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("dashboard server: %w", err)
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// scheduledRun re-evaluates the file globs each firing so the job picks up
// whatever landed in the input directories since the last run.
func (a *app) scheduledRun(ctx context.Context) {
	positions := existingFiles(a.positions)
	trades := existingFiles(a.trades)
	if len(positions) == 0 && len(trades) == 0 {
		pruned := a.store.PruneCache(a.cfg.PriceCacheTTL())
		a.logger.Printf("scheduled run: no input files, pruned %d stale quotes", pruned)
		return
	}

	run, err := a.pipe.RunProcess(ctx, pipeline.ProcessInput{
		Account:       a.account,
		PositionFiles: positions,
		TradeFiles:    trades,
	})
	if err != nil {
		a.logger.Printf("scheduled run failed: %v", err)
	}
	if run != nil && !a.noEmail {
		a.email(run)
	}
}

func existingFiles(patterns []string) []string {
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil || len(matches) == 0 {
			if _, statErr := os.Stat(p); statErr == nil {
				files = append(files, p)
			}
			continue
		}
		files = append(files, matches...)
	}
	return files
}

func newLogrus(level string) *logrus.Logger {
	l := logrus.New()
	if parsed, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(parsed)
	}
	return l
}

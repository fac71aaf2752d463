package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/challenge"
	"github.com/jmylchreest/sessionkeeper/internal/config"
	"github.com/jmylchreest/sessionkeeper/internal/cookies"
	"github.com/jmylchreest/sessionkeeper/internal/credentials"
	"github.com/jmylchreest/sessionkeeper/internal/domains"
	"github.com/jmylchreest/sessionkeeper/internal/engine/portal"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
	"github.com/jmylchreest/sessionkeeper/internal/output"
	"github.com/jmylchreest/sessionkeeper/internal/scrape"
	"github.com/jmylchreest/sessionkeeper/internal/session"
)

// closeTimeout bounds waiting for background work when a context closes.
const closeTimeout = 30 * time.Second

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Log in to configured accounts and refresh their sessions",
	Long: `Scrape launches one headless Chrome and, for each selected account in
turn, opens an isolated browser context, restores the account's stored
cookies, logs in and saves the refreshed cookies.

Examples:
  sessionkeeper scrape
  sessionkeeper scrape --account acme --account globex -o results.jsonl --format jsonl
  sessionkeeper scrape --metadata-log navigation.log`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	flags := scrapeCmd.Flags()
	flags.StringSlice("account", nil, "account company id to run (can be repeated, default: all)")
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "json", "output format: json, jsonl, yaml")
	flags.String("metadata-log", "", "append navigation and challenge metadata to this file")
	flags.Bool("stealth", false, "inject the stealth script and launch flags")
	flags.String("flaresolverr-url", "", "FlareSolverr API URL used when in-page solving fails (e.g., http://localhost:8191/v1)")

	_ = viper.BindPFlag("browser.stealth", flags.Lookup("stealth"))
	_ = viper.BindPFlag("challenge.flaresolverr_url", flags.Lookup("flaresolverr-url"))
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	metaPath, _ := cmd.Flags().GetString("metadata-log")
	if metaPath != "" {
		f, err := os.OpenFile(metaPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open metadata log: %w", err)
		}
		defer f.Close()
		logger.Init(logger.Options{
			Debug:          viper.GetBool("debug"),
			Quiet:          viper.GetBool("quiet"),
			JSON:           viper.GetBool("json_logs"),
			MetadataOutput: f,
		})
	}

	ids, _ := cmd.Flags().GetStringSlice("account")
	accounts, err := selectAccounts(cfg, ids)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}

	formatStr, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return err
	}
	var out io.Writer = cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	writer, err := output.NewWriter(out, format)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openCookieStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := browser.Launch(ctx, browser.LaunchConfig{
		ExecutablePath: cfg.Browser.ExecutablePath,
		Stealth:        cfg.Browser.Stealth,
	})
	if err != nil {
		logger.Error("failed to launch browser", "error", err)
		return err
	}
	defer sess.Close()

	tracker := domains.NewTracker(cfg.Domains.Blocked)
	manager := session.NewManager(sess, session.Options{
		Cookies: cookies.NewPersistence(store),
		Solver:  buildSolver(cfg),
		Domains: tracker,
		Stealth: cfg.Browser.Stealth,
	})
	orchestrator := scrape.NewOrchestrator(portal.Factory(portal.DefaultConfig()))

	var failed int
	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		rec := runAccount(ctx, manager, orchestrator, tracker, cfg, account)
		if !rec.Result.Success {
			failed++
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d account(s) failed", failed, len(accounts))
	}
	return nil
}

func runAccount(ctx context.Context, manager *session.Manager, orchestrator *scrape.Orchestrator,
	tracker *domains.Tracker, cfg *config.Config, account credentials.Account) output.Record {
	start := time.Now()
	id := account.CompanyID

	sc, err := manager.NewSecureContext(ctx, id)
	if err != nil {
		logger.Error("failed to create secure context", "company", id, "error", err)
		return output.NewRecord(id, start, scrape.Failed(scrape.ErrorGeneric, err.Error()))
	}

	result := orchestrator.Run(ctx, account, scrape.Options{
		CompanyID: id,
		Context:   sc,
		Timeout:   cfg.Scrape.Timeout,
		Verbose:   viper.GetBool("debug"),
	}, func(companyID string, phase scrape.Phase) {
		logInfo("[%s] %s", companyID, phase)
	})

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := sc.Close(closeCtx); err != nil {
		logger.Warn("failed to close secure context", "company", id, "error", err)
	}

	rec := output.NewRecord(id, start, result)
	rec.Domains = tracker.Domains(id)
	for _, c := range sc.State().Challenges() {
		rec.Challenges = append(rec.Challenges, output.Challenge{
			ID:      c.ID,
			URL:     c.URL,
			State:   c.State().String(),
			Outcome: c.Outcome(),
			Reason:  c.Reason(),
		})
	}
	return rec
}

// buildSolver solves in-page first and falls back to FlareSolverr when
// configured, all bounded by the challenge timeout.
func buildSolver(cfg *config.Config) session.Solver {
	var solver session.Solver = challenge.NewTurnstile()
	if cfg.Challenge.FlareSolverrURL != "" {
		solver = challenge.Fallback(solver, challenge.NewFlareSolverr(cfg.Challenge.FlareSolverrURL, 0))
	}
	return challenge.WithTimeout(solver, cfg.Challenge.Timeout)
}

func selectAccounts(cfg *config.Config, ids []string) ([]credentials.Account, error) {
	if len(ids) == 0 {
		return cfg.Accounts, nil
	}
	out := make([]credentials.Account, 0, len(ids))
	for _, id := range ids {
		a, ok := cfg.Account(id)
		if !ok {
			return nil, fmt.Errorf("unknown account %q", id)
		}
		out = append(out, a)
	}
	return out, nil
}

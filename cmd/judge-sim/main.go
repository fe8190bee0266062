package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/okian/quorum/internal/judgesim"
)

// Default configuration constants.
const (
	defaultUndoRate = 0.1
	defaultTimeout  = 30 * time.Second
	defaultRunLimit = 30 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		adminToken = flag.String("admin-token", os.Getenv("QUORUM_ADMIN_TOKEN"), "Admin token used to list judges")
		tokens     = flag.String("tokens", "", "Comma-separated judge tokens; overrides the admin listing")
		undoRate   = flag.Float64("undo", defaultUndoRate, "Probability of undoing a submission")
		seed       = flag.Uint64("seed", 1, "Seed for scores and undo decisions")
		maxSteps   = flag.Int("max-steps", 0, "Per-judge cap on submissions, 0 for no cap")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile    = flag.String("log", "", "Log file (default: judge_sim_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Log every submission")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		judgesim.ShowHelp()
		return
	}

	if err := judgesim.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	cfg := &judgesim.Config{
		BaseURL:    strings.TrimRight(*baseURL, "/"),
		AdminToken: *adminToken,
		Timeout:    *timeout,
		UndoRate:   *undoRate,
		Seed:       *seed,
		MaxSteps:   *maxSteps,
		Verbose:    *verbose,
	}
	for _, t := range strings.Split(*tokens, ",") {
		if t = strings.TrimSpace(t); t != "" {
			cfg.Tokens = append(cfg.Tokens, t)
		}
	}

	if _, err := judgesim.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

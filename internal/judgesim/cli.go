package judgesim

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/quorum/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging logs to stdout and to logFile. If logFile is empty, a
// timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "judge_sim_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithFormat("text"), logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Quorum Judge Simulator
======================

Drives every judge of a running quorum service through their queue
concurrently, then checks the campaign counters.

Usage:
  go run ./cmd/judge-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -admin-token string
        Admin token used to list judges (default $QUORUM_ADMIN_TOKEN)
  -tokens string
        Comma-separated judge tokens; overrides the admin listing
  -undo float
        Probability of undoing a submission (default 0.1)
  -seed uint
        Seed for scores and undo decisions (default 1)
  -max-steps int
        Per-judge cap on submissions, 0 for no cap
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file (default: judge_sim_TIMESTAMP.log)
  -verbose
        Log every submission
  -help
        Show this help message
`)
}

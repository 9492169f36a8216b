package bot

import (
	"flag"
	"fmt"
	"os"

	"wabot/pkg/config"
	"wabot/pkg/logger"
)

// Main parses flags, loads configuration and runs the bot. It returns the
// process exit code.
func Main() int {
	configPath := flag.String("config", "", "Config file path (optional)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	// Command-line flags win over file and environment values.
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logger.Init(logger.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.ErrorWithErr("invalid configuration", err)
		return 1
	}

	log.InfoWith("bot starting", "sessionId", cfg.SessionID, "port", cfg.Port)

	return Run(cfg)
}

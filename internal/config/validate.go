package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration is complete for the given run
// mode. Modes: "analyze" (one-shot CLI analysis), "serve" (HTTP API).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "analyze":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for driver "+c.Store.Driver)
		}
	default:
		problems = append(problems, "store.driver must be memory, sqlite, or postgres")
	}

	if c.Pipeline.MaxFiles < 1 || c.Pipeline.MaxFiles > 10 {
		problems = append(problems, "pipeline.max_files must be between 1 and 10")
	}
	if c.Pipeline.MaxFileSizeMB <= 0 {
		problems = append(problems, "pipeline.max_file_size_mb must be > 0")
	}
	if c.Pipeline.ExtractWorkers < 1 {
		problems = append(problems, "pipeline.extract_workers must be >= 1")
	}
	if d := c.Pipeline.AnalysisDepth; d != "comprehensive" && d != "basic" {
		problems = append(problems, "pipeline.analysis_depth must be comprehensive or basic")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// cmd/cataloger/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fetchlab/cataloger/internal/config"
	"github.com/fetchlab/cataloger/internal/monitoring"
	"github.com/fetchlab/cataloger/internal/output"
	"github.com/fetchlab/cataloger/internal/scraper"
	"github.com/fetchlab/cataloger/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: cataloger run <config.yaml>\n")
			os.Exit(1)
		}
		if err := runCrawl(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "validate":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: cataloger validate <config.yaml>\n")
			os.Exit(1)
		}
		if err := validateConfig(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration file %q is valid\n", os.Args[2])

	case "template":
		template, err := generateTemplate(os.Args[2:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(template)

	case "version", "--version":
		printVersion()

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

// runCrawl loads the configuration and drives a full crawl run.
func runCrawl(configFile string) error {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	level := utils.ParseLevel(cfg.LogLevel)
	if hasFlag("-v") || hasFlag("--verbose") {
		level = utils.DebugLevel
	}
	log := utils.NewLoggerWithLevel(level)

	var metrics *monitoring.Metrics
	var metricsServer *monitoring.Server
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetrics("")
		metricsServer = monitoring.NewServer(cfg.Monitoring.ListenAddress)
		metricsServer.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(ctx)
		}()
	}

	sink, err := output.NewSink(&cfg.Output, log)
	if err != nil {
		return fmt.Errorf("failed to create output sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Errorf("failed to close output sink: %v", err)
		}
	}()

	engine, err := scraper.New(scraper.Options{
		Config:  cfg,
		Sink:    sink,
		Log:     log,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("starting crawl %q with %d seed URLs", cfg.Name, len(cfg.Target.SeedURLs))
	start := time.Now()

	summary, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"items_saved":        summary.ItemsSaved,
		"items_enqueued":     summary.ItemsEnqueued,
		"proxy_circuit_open": summary.ProxyCircuitOpen,
		"degraded_rerun":     summary.DegradedRerun,
		"duration":           time.Since(start).Round(time.Second).String(),
	}).Info("crawl completed")

	fmt.Printf("Crawl completed: %d items saved in %v\n", summary.ItemsSaved, time.Since(start).Round(time.Second))
	return nil
}

// validateConfig loads and validates the configuration file.
func validateConfig(configFile string) error {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if hasFlag("-v") || hasFlag("--verbose") {
		fmt.Printf("Configuration details:\n")
		fmt.Printf("  Name: %s\n", cfg.Name)
		fmt.Printf("  Seed URLs: %d\n", len(cfg.Target.SeedURLs))
		fmt.Printf("  Follow details: %t\n", cfg.FollowDetails)
		fmt.Printf("  Output format: %s\n", cfg.Output.Format)
	}
	return nil
}

// generateTemplate renders a starter configuration as YAML.
func generateTemplate(args []string) (string, error) {
	templateType := "basic"
	if len(args) > 1 && args[0] == "--type" {
		templateType = args[1]
	}

	template := config.GenerateTemplate(templateType)

	yamlData, err := yaml.Marshal(template)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template to YAML: %w", err)
	}
	return string(yamlData), nil
}

// hasFlag checks if a flag is present in command line arguments.
func hasFlag(flag string) bool {
	for _, arg := range os.Args {
		if arg == flag {
			return true
		}
	}
	return false
}

// printUsage displays help information.
func printUsage() {
	fmt.Println("Cataloger - E-commerce Catalog Extraction Engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cataloger run <config.yaml>        Run a crawl with a configuration file")
	fmt.Println("  cataloger validate <config.yaml>   Validate a configuration file")
	fmt.Println("  cataloger template [--type <type>] Generate a configuration template")
	fmt.Println("  cataloger version                  Show version information")
	fmt.Println("  cataloger help                     Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -v, --verbose                      Enable verbose output")
	fmt.Println()
	fmt.Println("Template types:")
	fmt.Println("  basic       Minimal crawl template (default)")
	fmt.Println("  ecommerce   Catalog crawl with detail follow-up and filters")
}

// printVersion displays version information.
func printVersion() {
	fmt.Printf("cataloger %s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Git commit: %s\n", gitCommit)
}

// Package main is the entry point for the chat gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-gateway/internal/config"
	"github.com/compresr/chat-gateway/internal/monitoring"
)

// Version is set at build time via ldflags.
var Version = "v0.1.0"

// PrintVersion prints the binary version.
func PrintVersion() {
	fmt.Printf("chat-gateway %s\n", Version)
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/chat-gateway/.env first
	configEnv := filepath.Join(homeDir, ".config", "chat-gateway", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "start":
			runGatewayServer(os.Args[2:])
			return
		case "check-config":
			os.Exit(runCheckConfig(os.Args[2:]))
		case "version", "-v", "--version":
			PrintVersion()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	runGatewayServer(os.Args[1:])
}

// resolveServeConfig resolves the config for the serve command.
// Checks: user flag -> filesystem locations -> embedded config.
// Returns raw bytes and source description.
func resolveServeConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	homeDir, _ := os.UserHomeDir()

	searchPaths := []string{}
	if homeDir != "" {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "chat-gateway", "configs", "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/config.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	if data, err := getEmbeddedConfig("config"); err == nil {
		return data, "(embedded) config.yaml", nil
	}

	return nil, "", fmt.Errorf("no config file found. Specify --config path")
}

// loadConfig parses the resolved config. Fatal on error.
func loadConfig(userConfig string) (*config.Config, string) {
	configData, configSource, err := resolveServeConfig(userConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("No config file found. Specify --config path")
	}

	cfg, err := config.LoadFromBytes(configData)
	if err != nil {
		log.Fatal().Err(err).Str("config", configSource).Msg("failed to load configuration")
	}
	return cfg, configSource
}

// runGatewayServer starts the chat gateway.
func runGatewayServer(args []string) {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args) // ExitOnError handles errors

	setupLogging(*debug)

	cfg, configSource := loadConfig(*configPath)

	// Config-driven logging replaces the bootstrap logger.
	monitoring.Global(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", Version).
		Str("config", configSource).
		Msg("chat gateway starting")

	logEnvironmentCheck(cfg)

	gw, err := buildGateway(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway")
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	if err := gw.Start(); err != nil {
		log.Fatal().Err(err).Msg("gateway error")
	}

	log.Info().Msg("chat gateway stopped")
}

// runCheckConfig validates a config and prints what it resolves to.
func runCheckConfig(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args)

	data, source, err := resolveServeConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", source, err)
		return 1
	}

	fmt.Printf("config:       %s\n", source)
	fmt.Printf("port:         %d\n", cfg.Server.Port)
	fmt.Printf("environment:  %s\n", cfg.Server.Environment)
	fmt.Printf("provider:     %s (%s)\n", cfg.Upstream.Provider, cfg.Upstream.Endpoint())
	fmt.Printf("model:        %s\n", cfg.Upstream.Model)
	fmt.Printf("has api key:  %t\n", cfg.Upstream.APIKey != "")
	fmt.Printf("window:       >%d keep %d\n", cfg.Conversation.Window.MaxTotal, cfg.Conversation.Window.KeepRecent)
	fmt.Printf("hard cap:     >%d keep %d\n", cfg.Conversation.HardCap.Max, cfg.Conversation.HardCap.Keep)
	if names, err := listEmbeddedConfigs(); err == nil {
		fmt.Printf("embedded:     %v\n", names)
	}
	return 0
}

// logEnvironmentCheck reports credential presence without the secret.
func logEnvironmentCheck(cfg *config.Config) {
	event := log.Info()
	if cfg.Upstream.APIKey == "" && cfg.Upstream.Provider != "bedrock" {
		event = log.Warn()
	}
	event.
		Bool("has_api_key", cfg.Upstream.APIKey != "").
		Str("app_url", cfg.Server.AppURL).
		Str("environment", cfg.Server.Environment).
		Msg("environment check")
}

// setupLogging configures the bootstrap zerolog logger used until the
// config is loaded.
func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("chat-gateway - conversational LLM gateway")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chat-gateway [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve          Start the gateway server (default)")
	fmt.Println("  check-config   Validate the configuration and print a summary")
	fmt.Println("  version        Print version information")
	fmt.Println("  help           Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config FILE  Config file (default: configs/config.yaml, then embedded)")
	fmt.Println("  --debug        Enable debug logging")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  OPENROUTER_API_KEY  Provider credential")
	fmt.Println("  APP_URL             Frontend URL, sent as HTTP-Referer")
	fmt.Println("  PORT                Listen port")
}

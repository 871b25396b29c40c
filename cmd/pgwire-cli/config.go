package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/pgwireclient/pgwire"
)

var (
	connString string
	yamlPath   string
	logFile    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&connString, "conn", "", "postgres:// connection string (overrides --config and PG* env vars)")
	rootCmd.PersistentFlags().StringVar(&yamlPath, "config", "", "YAML file with a ConnectionConfig-shaped document")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "rotate structured logs to this path instead of stderr (uses lumberjack)")
}

// yamlConfig is the on-disk shape accepted by --config, mapped onto
// pgwire.ConnectionConfig.
type yamlConfig struct {
	Database        string            `yaml:"database"`
	User            string            `yaml:"user"`
	Password        string            `yaml:"password"`
	Host            string            `yaml:"host"`
	Port            int               `yaml:"port"`
	ApplicationName string            `yaml:"application_name"`
	Options         map[string]string `yaml:"options"`
}

func loadYAMLConfig(path string) (*pgwire.ConnectionConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var doc yamlConfig
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return pgwire.NewConnectionConfig(pgwire.ConnectionConfig{
		Database:        doc.Database,
		User:            doc.User,
		Password:        doc.Password,
		Host:            doc.Host,
		Port:            doc.Port,
		ApplicationName: doc.ApplicationName,
		Options:         doc.Options,
	})
}

// resolveConfig implements the CLI's config precedence: --conn, then
// --config, then the PG* environment variables.
func resolveConfig() (*pgwire.ConnectionConfig, error) {
	switch {
	case connString != "":
		return pgwire.ParseConnectionString(connString)
	case yamlPath != "":
		return loadYAMLConfig(yamlPath)
	default:
		return pgwire.ConfigFromEnv()
	}
}

func newLogger() *slog.Logger {
	if logFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	w := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

func connectFromFlags(ctx context.Context, cmd *cobra.Command) (*pgwire.Session, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logger = newLogger()
	return pgwire.Connect(ctx, cfg)
}

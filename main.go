package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/asrbench/config"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)

	rootCmd.PersistentFlags().String("config", "", "Settings file (default ./settings.{ini,yaml})")
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file with provider credentials")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("language", "", "Speech language, e.g. en-US")
	rootCmd.PersistentFlags().Bool("realtime", true, "Pace audio like a live microphone")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres URL for recording results")

	viper.BindPFlag(
		config.KeySpeechLanguage,
		rootCmd.PersistentFlags().Lookup("language"),
	)
	viper.BindPFlag(config.KeyRealtime, rootCmd.PersistentFlags().Lookup("realtime"))
	viper.BindPFlag(
		config.KeyDatabaseURL,
		rootCmd.PersistentFlags().Lookup("database-url"),
	)
}

func initConfig() {
	flags := rootCmd.PersistentFlags()
	configFile, _ := flags.GetString("config")
	envFile, _ := flags.GetString("env-file")
	level, _ := flags.GetString("log-level")

	logger = createLogger(level)

	if err := config.Init(viper.GetViper(), configFile, envFile); err != nil {
		logger.Fatal("load settings", "error", err)
	}
	if f := viper.ConfigFileUsed(); f != "" {
		logger.Debug("settings", "file", f)
	}
}

// settings reads the merged settings. Flags that are not set keep the
// value from the file or environment.
func settings() config.Settings {
	s, err := config.FromViper(viper.GetViper())
	if err != nil {
		logger.Fatal("settings", "error", err)
	}
	return s
}

var rootCmd = &cobra.Command{
	Use:   "asrbench",
	Short: "asrbench benchmarks speech recognition services",
	Long: `asrbench streams recordings to speech recognition services, records what they
return and how fast, and scores their transcripts against gold transcripts.`,
}

func createLogger(level string) *log.Logger {
	l := log.New(os.Stderr)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	if lvl == log.DebugLevel {
		l.SetReportCaller(true)
		l.SetCallerFormatter(
			func(file string, line int, funcName string) string {
				path, err := filepath.Rel(".", file)
				if err != nil {
					path = file
				}
				return fmt.Sprintf("%s:%d", path, line)
			},
		)
	}

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	l.SetStyles(styles)
	return l
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

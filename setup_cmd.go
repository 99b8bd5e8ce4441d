package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/asrbench/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a settings file interactively",
	Run:   runSetup,
}

func init() {
	setupCmd.Flags().String("out", "settings.yaml", "Settings file to write")
}

type setupAnswers struct {
	systems      []string
	dataFolders  string
	language     string
	maxFiles     string
	awsAccessKey string
	awsSecretKey string
	awsRegion    string
	speechmatics string
	deepgram     string
	gemini       string
}

func runSetup(cmd *cobra.Command, args []string) {
	mainLogger := logger.With().WithPrefix("main")
	out, _ := cmd.Flags().GetString("out")
	s := settings()

	a := setupAnswers{
		systems:      s.ASRSystems,
		dataFolders:  strings.Join(s.DataFolders, ","),
		language:     s.SpeechLanguage,
		maxFiles:     strconv.Itoa(s.MaxDataFiles),
		awsAccessKey: s.Credentials.AmazonAccessKeyID,
		awsSecretKey: s.Credentials.AmazonSecretAccessKey,
		awsRegion:    s.Credentials.AmazonRegion,
		speechmatics: s.Credentials.SpeechmaticsToken,
		deepgram:     s.Credentials.DeepgramAPIKey,
		gemini:       s.Credentials.GeminiAPIKey,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Which systems should be benchmarked?").
				Options(huh.NewOptions(knownSystems()...)...).
				Value(&a.systems),
			huh.NewInput().
				Title("Data folders (comma separated)").
				Value(&a.dataFolders),
			huh.NewInput().
				Title("Speech language").
				Value(&a.language),
			huh.NewInput().
				Title("Maximum files per folder (0 for all)").
				Value(&a.maxFiles).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("enter a number of files")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your AWS access key id").
				Value(&a.awsAccessKey),
			huh.NewInput().
				Title("Enter your AWS secret access key").
				Password(true).
				Value(&a.awsSecretKey),
			huh.NewInput().
				Title("AWS region").
				Value(&a.awsRegion),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Speechmatics API Key").
				Value(&a.speechmatics),
			huh.NewInput().
				Title("Enter your Deepgram API Key").
				Value(&a.deepgram),
			huh.NewInput().
				Title("Enter your Google Cloud (Gemini) API Key").
				Value(&a.gemini),
		),
	)

	if err := form.Run(); err != nil {
		mainLogger.Fatal("Error during setup", "error", err)
	}

	if err := writeSettings(out, a); err != nil {
		mainLogger.Fatal("Error saving configuration", "error", err)
	}
	mainLogger.Info("Setup completed successfully!", "file", out)
}

func writeSettings(path string, a setupAnswers) error {
	v := viper.New()
	maxFiles, _ := strconv.Atoi(a.maxFiles)
	v.Set(config.KeyASRSystems, strings.Join(a.systems, ","))
	v.Set(config.KeyDataFolders, a.dataFolders)
	v.Set(config.KeySpeechLanguage, a.language)
	v.Set(config.KeyMaxDataFiles, maxFiles)
	v.Set(config.KeyAmazonAccessKeyID, a.awsAccessKey)
	v.Set(config.KeyAmazonSecretAccessKey, a.awsSecretKey)
	v.Set(config.KeyAmazonRegion, a.awsRegion)
	v.Set(config.KeySpeechmaticsToken, a.speechmatics)
	v.Set(config.KeyDeepgramAPIKey, a.deepgram)
	v.Set(config.KeyGeminiAPIKey, a.gemini)
	return v.WriteConfigAs(path)
}

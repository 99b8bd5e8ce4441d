package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"node.town/asrbench/awslive"
	"node.town/asrbench/sigv4"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print a presigned AWS Transcribe streaming URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := settings()
		c, err := awslive.New(awslive.Config{
			Credentials: sigv4.Credentials{
				AccessKey: s.Credentials.AmazonAccessKeyID,
				SecretKey: s.Credentials.AmazonSecretAccessKey,
			},
			Region:       s.Credentials.AmazonRegion,
			LanguageCode: s.SpeechLanguage,
		})
		if err != nil {
			return err
		}
		u, sc, err := c.URL(time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		logger.Info("signed", "scope", sc.Scope(), "expires", sc.ExpiresAt().Format(time.RFC3339))
		return nil
	},
}

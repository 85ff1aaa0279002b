package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	mime "github.com/flashmob/go-mime"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version info",
	Long:  `Every software has a version. This is mimetool's`,
	Run: func(cmd *cobra.Command, args []string) {
		logVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func logVersion() {
	mainlog.WithFields(logrus.Fields{
		"version":   mime.Version,
		"buildTime": mime.BuildTime,
		"commit":    mime.Commit,
	}).Info("mimetool")
}

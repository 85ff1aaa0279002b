package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flashmob/go-mime/log"
	//_ "github.com/flashmob/go-mime/iconv"
	_ "github.com/flashmob/go-mime/encoding"
)

var rootCmd = &cobra.Command{
	Use:   "mimetool",
	Short: "MIME message toolbox",
	Long: `Parse, build, split and store MIME encoded messages.
The storage commands cut messages into content addressed chunks so that
content shared between messages is stored once.`,
	Run: nil,
}

var (
	verbose bool

	mainlog log.Logger
)

func init() {
	// log to stderr on startup
	var err error
	mainlog, err = log.GetLogger(log.OutputStderr.String(), "info")
	if err != nil {
		mainlog.WithError(err).Errorf("Failed creating a logger to %s", log.OutputStderr)
	}
	cobra.OnInitialize()
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"print out more debug information")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
			mainlog.SetLevel("debug")
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	mime "github.com/flashmob/go-mime"
	"github.com/flashmob/go-mime/store"
	_ "github.com/flashmob/go-mime/store/redigo"

	_ "github.com/go-sql-driver/mysql"
)

var saveCmd = &cobra.Command{
	Use:   "save <message file>...",
	Short: "chunk messages into the configured storage",
	Long: `Parses each message and writes it to the storage engine from the
config file, cut into content addressed chunks. A chunk shared with an
already stored message is only stored once.`,
	Args: cobra.MinimumNArgs(1),
	RunE: save,
}

func init() {
	saveCmd.Flags().StringVarP(&configPath, "config", "c",
		"mimetool.conf.json", "Path to the configuration file")
	rootCmd.AddCommand(saveCmd)
}

func save(cmd *cobra.Command, args []string) error {
	ac, err := readConfig(configPath, "")
	if err != nil {
		return err
	}
	db, err := store.New(ac.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = db.Shutdown() }()
	c := store.NewChunker(db, ac.ChunkSize)
	for _, name := range args {
		if _, err := saveFile(c, name); err != nil {
			return err
		}
	}
	return nil
}

// saveFile parses one message file and chunks it into storage
func saveFile(c *store.Chunker, name string) (uint64, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	ent, err := mime.ReadEntity(f)
	if err != nil {
		return 0, err
	}
	id, err := c.WriteEntity(filepath.Base(name), ent)
	if err != nil {
		return 0, err
	}
	mainlog.WithFields(logrus.Fields{
		"id":   id,
		"file": name,
	}).Info("message stored")
	return id, nil
}

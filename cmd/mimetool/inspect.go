package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	mime "github.com/flashmob/go-mime"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <message file>",
	Short: "print the entity tree of a message",
	Long: `Parses a MIME message and prints one line per entity: the path of the
entity in the tree, its content type, body size and attachment file name.
Encoded words in the address and subject headers are decoded.`,
	Args: cobra.ExactArgs(1),
	RunE: inspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func inspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	ent, err := mime.ReadEntity(f)
	if err != nil {
		return err
	}
	for _, name := range []string{"From", "To", "Subject", "Date"} {
		if v, err := ent.GetHeader(name); err == nil {
			fmt.Println(name+":", mime.HeaderDecode(v))
		}
	}
	fmt.Println()
	return printEntity(ent, "1", 0)
}

func printEntity(e *mime.Entity, path string, depth int) error {
	line := strings.Repeat("  ", depth) + fmt.Sprintf("%-8s %s", path, displayType(e))
	if isContainer(e) {
		fmt.Println(line)
		parts, err := e.Parts()
		if err != nil {
			return err
		}
		for i := range parts {
			if err := printEntity(parts[i], fmt.Sprintf("%s.%d", path, i+1), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	b, err := e.Bytes()
	if err != nil {
		return err
	}
	line += fmt.Sprintf(" (%d bytes)", len(b))
	if d := e.ContentDisposition(); d.FileName != "" {
		line += " " + d.FileName
	}
	fmt.Println(line)
	return nil
}

// isContainer reports whether e holds child entities, either already split
// or still raw with a boundary to split on
func isContainer(e *mime.Entity) bool {
	if e.IsMultipart() {
		return true
	}
	mt, err := e.MediaType()
	if err != nil {
		return false
	}
	return mt.Primary == "multipart" && mt.Boundary() != ""
}

func displayType(e *mime.Entity) string {
	if ct := e.ContentType(); ct != "" {
		return ct
	}
	return "text/plain (default)"
}

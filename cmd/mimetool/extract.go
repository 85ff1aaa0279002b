package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	mime "github.com/flashmob/go-mime"
	"github.com/flashmob/go-mime/transfer"
)

var extractDir string

var extractCmd = &cobra.Command{
	Use:   "extract <message file>",
	Short: "write the decoded body of each part to a directory",
	Long: `Splits a multipart message and writes the body of every leaf part to
its own file. Base64 bodies are decoded and text in a legacy charset is
converted to UTF-8. File names come from the content disposition of the
part, prefixed with the part path so that parts never overwrite each other.`,
	Args: cobra.ExactArgs(1),
	RunE: extract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractDir, "out", "o", ".",
		"directory the part bodies are written to")
	rootCmd.AddCommand(extractCmd)
}

func extract(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	ent, err := mime.ReadEntity(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return err
	}
	return extractEntity(ent, "1")
}

func extractEntity(e *mime.Entity, path string) error {
	if isContainer(e) {
		parts, err := e.Parts()
		if err != nil {
			return err
		}
		for i := range parts {
			if err := extractEntity(parts[i], fmt.Sprintf("%s.%d", path, i+1)); err != nil {
				return err
			}
		}
		return nil
	}
	body, err := e.Bytes()
	if err != nil {
		return err
	}
	cte, _ := e.Header().Get(mime.HeaderContentTransferEncoding)
	charset := ""
	if mt, err := e.MediaType(); err == nil {
		charset = mt.Charset()
	}
	r, err := transfer.NewTransferDecoder(bytes.NewReader(body), transfer.ParseEncoding(cte), charset)
	if err != nil {
		return fmt.Errorf("part %s: %w", path, err)
	}
	name := partFileName(e, path)
	out, err := os.Create(filepath.Join(extractDir, name))
	if err != nil {
		return err
	}
	w, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("part %s: %w", path, err)
	}
	fmt.Println(name, w, "bytes")
	return nil
}

// partFileName names the output file for a leaf part. The part path keeps
// the names unique when two attachments arrive under the same file name.
func partFileName(e *mime.Entity, path string) string {
	if d := e.ContentDisposition(); d.FileName != "" {
		return path + "-" + filepath.Base(d.FileName)
	}
	if mt, err := e.MediaType(); err == nil {
		if name, ok := mt.Param("name"); ok && name != "" {
			return path + "-" + filepath.Base(name)
		}
	}
	return "part-" + path + extForType(e)
}

func extForType(e *mime.Entity) string {
	mt, err := e.MediaType()
	if err != nil {
		return ".txt"
	}
	if ext, ok := typeToExt[mt.BaseType()]; ok {
		return ext
	}
	return ".bin"
}

var typeToExt = map[string]string{
	"text/plain":       ".txt",
	"text/html":        ".html",
	"text/csv":         ".csv",
	"application/json": ".json",
	"application/pdf":  ".pdf",
	"application/zip":  ".zip",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"message/rfc822":   ".eml",
}

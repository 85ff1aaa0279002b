package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	mime "github.com/flashmob/go-mime"
	"github.com/flashmob/go-mime/transfer"
)

var (
	packOut     string
	packSubject string
)

var packCmd = &cobra.Command{
	Use:   "pack <file>...",
	Short: "assemble files into a multipart message",
	Long: `Builds a multipart/mixed message with one part per file. The content
type of each part is guessed from the file extension, text rides as it is
and anything else is base64 encoded and marked as an attachment.`,
	Args: cobra.MinimumNArgs(1),
	RunE: pack,
}

func init() {
	packCmd.Flags().StringVarP(&packOut, "out", "o", "",
		"write the message to a file instead of stdout")
	packCmd.Flags().StringVarP(&packSubject, "subject", "s", "",
		"subject header of the message")
	rootCmd.AddCommand(packCmd)
}

func pack(cmd *cobra.Command, args []string) error {
	root, err := buildMessage(args, packSubject)
	if err != nil {
		return err
	}
	var w io.Writer = os.Stdout
	if packOut != "" {
		f, err := os.Create(packOut)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	_, err = root.WriteTo(w)
	return err
}

// buildMessage assembles one part per file under a multipart/mixed root
func buildMessage(files []string, subject string) (*mime.Entity, error) {
	parts := make([]*mime.Entity, 0, len(files))
	for _, name := range files {
		part, err := filePart(name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	root := mime.NewEntity()
	if err := root.SetParts(parts, "multipart/mixed"); err != nil {
		return nil, err
	}
	root.SetHeader("MIME-Version", "1.0")
	if subject != "" {
		root.SetHeader("Subject", subject)
	}
	return root, nil
}

func filePart(name string) (*mime.Entity, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	part := mime.NewEntity()
	ct := typeForExt(filepath.Ext(name))
	if strings.HasPrefix(ct, "text/") {
		if err := part.SetText(string(b), ct); err != nil {
			return nil, err
		}
		return part, nil
	}
	// binary content rides as wrapped base64
	var buf bytes.Buffer
	lb := &transfer.LineBreaker{Out: &buf}
	if _, err := lb.Write(transfer.EncodeBytes(b)); err != nil {
		return nil, err
	}
	if err := lb.Close(); err != nil {
		return nil, err
	}
	if err := part.SetBytes(buf.Bytes(), ct); err != nil {
		return nil, err
	}
	part.SetHeader(mime.HeaderContentTransferEncoding, "base64")
	part.SetContentDisposition(&mime.ContentDisposition{
		Disposition: mime.DispositionAttachment,
		FileName:    filepath.Base(name),
	})
	return part, nil
}

func typeForExt(ext string) string {
	if t, ok := extToType[strings.ToLower(ext)]; ok {
		return t
	}
	return "application/octet-stream"
}

var extToType = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".json": "application/json",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".eml":  "message/rfc822",
}

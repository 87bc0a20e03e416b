package linkfile

import (
	"cmp"
	"context"
	"fmt"
	"github.com/gosimple/slug"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/internal/logger"
	"github.com/rs/zerolog"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Writer struct {
	tempDir string
	bucket  string
	logger  zerolog.Logger
}

func New(cfg config.Links) *Writer {
	return &Writer{
		tempDir: cmp.Or(cfg.TempDir, os.TempDir()),
		bucket:  cfg.Bucket,
		logger:  logger.New("links"),
	}
}

// FileName derives the links file name from the torrent name.
func FileName(torrentName string) string {
	return cmp.Or(slug.Make(torrentName), "links") + ".txt"
}

func (w *Writer) TempPath(torrentName string) string {
	return filepath.Join(w.tempDir, FileName(torrentName))
}

// Write replaces the temp links file with one URL per line and returns its path.
func (w *Writer) Write(torrentName string, urls []string) (string, error) {
	path := w.TempPath(torrentName)
	if err := os.MkdirAll(w.tempDir, 0755); err != nil {
		return "", fmt.Errorf("creating links folder: %w", err)
	}
	content := strings.Join(urls, "\n")
	if len(urls) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing links file: %w", err)
	}
	w.logger.Debug().Msgf("Wrote %d links to %s", len(urls), path)
	return path, nil
}

// Promote moves the links file into outputDir, overwriting any previous one.
func Promote(path, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output folder: %w", err)
	}
	dst := filepath.Join(outputDir, filepath.Base(path))
	if err := os.Rename(path, dst); err == nil {
		return dst, nil
	}
	// Rename fails across filesystems, fall back to a copy.
	if err := copyFile(path, dst); err != nil {
		return "", err
	}
	_ = os.Remove(path)
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Publish uploads the links file to the configured bucket. Without a bucket it does nothing.
func (w *Writer) Publish(ctx context.Context, path string) error {
	if w.bucket == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	bucket, err := blob.OpenBucket(ctx, w.bucket)
	if err != nil {
		return fmt.Errorf("opening bucket: %w", err)
	}
	defer bucket.Close()

	key := filepath.Base(path)
	if err := bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "text/plain; charset=utf-8"}); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	w.logger.Info().Msgf("Published %s to %s", key, w.bucket)
	return nil
}

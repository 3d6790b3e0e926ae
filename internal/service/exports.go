package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joeblew999/plat-traffic/internal/export"
	"github.com/joeblew999/plat-traffic/internal/logger"
)

// ExportStore keeps server-side copies of CSV exports, one directory per session.
type ExportStore struct {
	dir string
}

func NewExportStore(dir string) *ExportStore {
	return &ExportStore{dir: dir}
}

// Save implements export.Saver. The session is taken from ctx; exports made
// outside a session land in "headless".
func (s *ExportStore) Save(ctx context.Context, b export.Blob) error {
	session := logger.SessionFrom(ctx)
	if session == "" {
		session = "headless"
	}
	return export.FileSaver{Dir: filepath.Join(s.dir, session)}.Save(ctx, b)
}

// List returns every saved export, newest first.
func (s *ExportStore) List() ([]ExportFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ExportFile{}, nil
		}
		return nil, fmt.Errorf("list exports: %w", err)
	}

	files := []ExportFile{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(s.dir, entry.Name(), export.Filename))
		if err != nil {
			continue
		}
		files = append(files, ExportFile{
			Session:  entry.Name(),
			Name:     export.Filename,
			Size:     formatSize(info.Size()),
			Modified: info.ModTime().UTC(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Modified.After(files[j].Modified) })
	return files, nil
}

func (s *ExportStore) Dir() string { return s.dir }

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

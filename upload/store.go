// Package upload manages the on-disk storage of report image attachments.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bpsreport/report-server/globals"
	"github.com/bpsreport/report-server/persistence"
	"github.com/bpsreport/report-server/types"
)

// WebPrefix is the URL path under which stored files are served. Response
// image references are of the form "/uploads/<file>".
const WebPrefix = "/uploads/"

// sweepMinAge protects freshly uploaded files that are not yet attached to a
// response from the orphan sweep.
const sweepMinAge = time.Hour

type Store struct {
	dir string
}

// NewStore makes sure the upload directory exists and returns a store on it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes the uploaded content under name and returns the web path a
// response can reference it by.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	f, err := os.Create(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return WebPrefix + filepath.Base(name), nil
}

// Remove deletes the file behind a web path. Missing files are not an error,
// a purge must not fail halfway because a file is already gone.
func (s *Store) Remove(webPath string) error {
	name := strings.TrimPrefix(webPath, WebPrefix)
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid upload path %q", webPath)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveReportImages deletes every image file referenced by the report's
// responses. Failures are logged and skipped so one stubborn file does not
// keep the report alive.
func (s *Store) RemoveReportImages(report *types.Report) {
	for _, response := range report.Responses {
		if response.Image == "" {
			continue
		}
		if err := s.Remove(response.Image); err != nil {
			globals.AppLogger.Warn("could not remove report image", "image", response.Image, "error", err)
		}
	}
}

// Sweep deletes stored files that no persisted report references anymore,
// e.g. uploads whose report was never created. Files younger than an hour are
// left alone, they may belong to a message still in flight.
func (s *Store) Sweep(persister persistence.Persister) error {
	reports, err := persister.GetReports()
	if err != nil {
		return err
	}
	referenced := make(map[string]struct{})
	for _, report := range reports {
		for _, response := range report.Responses {
			if response.Image != "" {
				referenced[strings.TrimPrefix(response.Image, WebPrefix)] = struct{}{}
			}
		}
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := referenced[entry.Name()]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || time.Since(info.ModTime()) < sweepMinAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			globals.AppLogger.Warn("could not sweep orphaned upload", "file", entry.Name(), "error", err)
			continue
		}
		globals.AppLogger.Info("swept orphaned upload", "file", entry.Name())
	}
	return nil
}

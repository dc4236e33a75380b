// Package filestore is a store sink that appends records, one JSON array
// per origin worker, under a configured directory.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/filestore.FileStore", New)
}

// FileStore appends each write to a per-worker-name .tmp file as a JSON
// array element, and on Done closes the array and renames to .json,
// mirroring the reference filesystem store's two-phase write.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	opened map[string]bool
}

// New constructs a FileStore from its descriptor params: path (default
// "/tmp/cloudwarden").
func New(params map[string]interface{}) (interface{}, error) {
	path := "/tmp/cloudwarden"
	if v, ok := params["path"].(string); ok && v != "" {
		path = v
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", path, err)
	}
	return &FileStore{dir: path, opened: map[string]bool{}}, nil
}

func (s *FileStore) tmpPath(worker string) string {
	return filepath.Join(s.dir, worker+".tmp")
}

func (s *FileStore) jsonPath(worker string) string {
	return filepath.Join(s.dir, worker+".json")
}

// Write implements plugin.StoreSink.
func (s *FileStore) Write(ctx context.Context, rec record.Record) error {
	worker := rec.Com.OriginWorker
	if worker == "" {
		worker = "no_worker"
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delim := ",\n"
	flags := os.O_APPEND | os.O_WRONLY
	if !s.opened[worker] {
		delim = ""
		flags = os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	}

	f, err := os.OpenFile(s.tmpPath(worker), flags, 0o644)
	if err != nil {
		return fmt.Errorf("filestore: open %s: %w", s.tmpPath(worker), err)
	}
	defer f.Close()

	if !s.opened[worker] {
		if _, err := f.WriteString("[\n"); err != nil {
			return err
		}
	}
	if _, err := f.WriteString(delim); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	s.opened[worker] = true
	return nil
}

// Done implements plugin.StoreSink: closes every open array and renames
// each .tmp file to .json.
func (s *FileStore) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for worker := range s.opened {
		f, err := os.OpenFile(s.tmpPath(worker), os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			f.WriteString("\n]\n")
			f.Close()
		}
		os.Rename(s.tmpPath(worker), s.jsonPath(worker))
	}
}

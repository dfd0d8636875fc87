package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"webcammonitor/internal/database"
	"webcammonitor/internal/logger"
	"webcammonitor/internal/model"
)

const (
	// timestampLayout sorts lexically in chronological order; milliseconds
	// keep two triggers in the same second apart.
	timestampLayout = "2006-01-02_15-04-05.000"

	tmpSuffix = ".tmp"
)

// Store persists triggered events under imagesDir and enforces the retention
// caps. Persist and the retention sweep are mutually exclusive: both take the
// store mutex before touching the directory.
type Store struct {
	imagesDir string
	maxCount  int
	maxBytes  int64
	db        *database.Database
	log       *logger.Logger
	mu        sync.Mutex
}

// New creates a Store writing to imagesDir. The sqlite index may be nil; the
// filesystem is the source of truth either way.
func New(imagesDir string, maxCount int, maxBytes int64, db *database.Database, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	return &Store{
		imagesDir: imagesDir,
		maxCount:  maxCount,
		maxBytes:  maxBytes,
		db:        db,
		log:       log,
	}, nil
}

// Recover removes leftovers of writes interrupted by a crash. Temporary files
// are never visible artifacts; index rows whose image is gone are pruned.
func (s *Store) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.imagesDir)
	if err != nil {
		return fmt.Errorf("failed to read images directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tmpSuffix) {
			continue
		}
		path := filepath.Join(s.imagesDir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.log.Warning("Failed to remove stale temp file %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("Removed %d stale temp file(s) from %s", removed, s.imagesDir)
	}

	if s.db != nil {
		records, err := s.db.ListOldest(0)
		if err != nil {
			return fmt.Errorf("failed to list index: %w", err)
		}
		for _, rec := range records {
			if _, err := os.Stat(filepath.Join(s.imagesDir, rec.Filename)); os.IsNotExist(err) {
				if err := s.db.Delete(rec.Filename); err != nil {
					s.log.Warning("Failed to prune index row %s: %v", rec.Filename, err)
				}
			}
		}
	}
	return nil
}

// Persist writes the event's image and JSON sidecar. Both go through a
// temporary path and a rename, so a crash mid-write leaves no visible
// artifact. Only triggering events reach here.
func (s *Store) Persist(event model.Event, image []byte) (model.Artifact, error) {
	if !event.Triggered {
		return model.Artifact{}, fmt.Errorf("refusing to persist a non-triggering event")
	}
	if len(image) == 0 {
		image = event.Frame.Data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := fmt.Sprintf("%s_%s", event.Frame.Timestamp.Format(timestampLayout), event.Class)
	imagePath := filepath.Join(s.imagesDir, base+".jpg")
	metaPath := filepath.Join(s.imagesDir, base+".json")

	meta := model.Metadata{
		Timestamp:  event.Frame.Timestamp,
		Source:     event.Frame.Source,
		Classes:    event.Detections.Labels(),
		Detections: event.Detections,
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return model.Artifact{}, fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := writeAtomic(imagePath, image); err != nil {
		return model.Artifact{}, fmt.Errorf("failed to write image: %w", err)
	}
	if err := writeAtomic(metaPath, metaBytes); err != nil {
		// Keep the pair consistent: an image without its sidecar is not an artifact.
		os.Remove(imagePath)
		return model.Artifact{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	artifact := model.Artifact{
		ImagePath: imagePath,
		MetaPath:  metaPath,
		Timestamp: event.Frame.Timestamp,
		Classes:   meta.Classes,
		Size:      int64(len(image)) + int64(len(metaBytes)),
	}

	if s.db != nil {
		_, err := s.db.Insert(&database.Record{
			Filename:  base + ".jpg",
			Source:    event.Frame.Source,
			Classes:   meta.Classes,
			Timestamp: event.Frame.Timestamp,
			FileSize:  artifact.Size,
		})
		if err != nil {
			s.log.Warning("Failed to index artifact %s: %v", base, err)
		}
	}

	s.log.Info("Saved artifact: %s (%s)", base+".jpg", event.Reason)
	return artifact, nil
}

// EnforceRetention deletes oldest artifacts first until both the count and the
// byte caps hold, returning how many were removed. Deletion failures are
// logged and skipped; they never stop later writes or later sweeps.
func (s *Store) EnforceRetention() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifacts, err := s.list()
	if err != nil {
		return 0, err
	}

	count := len(artifacts)
	var total int64
	for _, a := range artifacts {
		total += a.Size
	}

	deleted := 0
	for _, victim := range artifacts {
		if count <= s.maxCount && total <= s.maxBytes {
			break
		}
		if err := os.Remove(victim.ImagePath); err != nil && !os.IsNotExist(err) {
			s.log.Warning("Retention: failed to delete %s: %v", filepath.Base(victim.ImagePath), err)
			continue
		}
		if err := os.Remove(victim.MetaPath); err != nil && !os.IsNotExist(err) {
			s.log.Warning("Retention: failed to delete %s: %v", filepath.Base(victim.MetaPath), err)
		}
		if s.db != nil {
			if err := s.db.Delete(filepath.Base(victim.ImagePath)); err != nil {
				s.log.Warning("Retention: failed to unindex %s: %v", filepath.Base(victim.ImagePath), err)
			}
		}
		count--
		total -= victim.Size
		deleted++
	}

	if deleted > 0 {
		s.log.Info("Retention: deleted %d artifact(s), %d remain (%d bytes)", deleted, count, total)
	}
	return deleted, nil
}

// List returns the visible artifacts oldest-first. Temporary files and
// unpaired leftovers are never listed.
func (s *Store) List() ([]model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *Store) list() ([]model.Artifact, error) {
	entries, err := os.ReadDir(s.imagesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read images directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		names = append(names, entry.Name())
	}
	// Lexical order is chronological order by the filename contract.
	sort.Strings(names)

	artifacts := make([]model.Artifact, 0, len(names))
	for _, name := range names {
		imagePath := filepath.Join(s.imagesDir, name)
		metaPath := strings.TrimSuffix(imagePath, ".jpg") + ".json"

		imageInfo, err := os.Stat(imagePath)
		if err != nil {
			continue
		}
		size := imageInfo.Size()
		if metaInfo, err := os.Stat(metaPath); err == nil {
			size += metaInfo.Size()
		}

		artifacts = append(artifacts, model.Artifact{
			ImagePath: imagePath,
			MetaPath:  metaPath,
			Timestamp: imageInfo.ModTime(),
			Size:      size,
		})
	}
	return artifacts, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + tmpSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

package vectorstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const (
	quarantineDir    = ".quarantine"
	chromemMetaFile  = "00000000.gob"
	missingMetaError = "collection metadata file not found"
)

// collectionDirPattern matches chromem's hashed collection directory names.
var collectionDirPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

// openPersistentChromem opens the DB at path. When a collection directory
// lost its metadata file, chromem refuses to load at all; such directories
// are moved aside into .quarantine and the open is retried once.
func openPersistentChromem(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		logger.Info("chromem DB loaded", zap.String("path", path))
		return db, nil
	}
	if !strings.Contains(err.Error(), missingMetaError) {
		return nil, err
	}

	orphans, scanErr := orphanedCollections(path, logger)
	if scanErr != nil {
		logger.Error("scanning chromem collections failed", zap.Error(scanErr))
		return nil, err
	}
	if len(orphans) == 0 {
		return nil, err
	}
	moved, err := quarantine(path, orphans, logger)
	if err != nil {
		return nil, err
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("loading chromem DB after quarantine: %w", err)
	}
	logger.Warn("chromem DB loaded after quarantine", zap.Int("quarantined", moved))
	return db, nil
}

// orphanedCollections lists collection directories that hold document files
// but no metadata file.
func orphanedCollections(path string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var orphans []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(path, e.Name())
		if _, err := os.Stat(filepath.Join(dir, chromemMetaFile)); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		files, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("reading collection directory failed", zap.String("collection_dir", e.Name()), zap.Error(err))
			continue
		}
		for _, f := range files {
			if !f.IsDir() && filepath.Ext(f.Name()) == ".gob" {
				orphans = append(orphans, e.Name())
				break
			}
		}
	}
	return orphans, nil
}

// quarantine moves each named collection directory under path/.quarantine
// and returns how many moved. Names that are not chromem collection hashes
// are skipped.
func quarantine(path string, names []string, logger *zap.Logger) (int, error) {
	dest := filepath.Join(path, quarantineDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		QuarantineOperations.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("creating quarantine directory: %w", err)
	}

	moved := 0
	for _, name := range names {
		if !collectionDirPattern.MatchString(name) {
			logger.Error("refusing to quarantine unexpected directory", zap.String("collection_dir", name))
			continue
		}
		if err := os.Rename(filepath.Join(path, name), filepath.Join(dest, name)); err != nil {
			QuarantineOperations.WithLabelValues("error").Inc()
			logger.Error("quarantine failed", zap.String("collection_dir", name), zap.Error(err))
			continue
		}
		QuarantineOperations.WithLabelValues("success").Inc()
		logger.Warn("collection quarantined", zap.String("collection_dir", name))
		moved++
	}
	return moved, nil
}

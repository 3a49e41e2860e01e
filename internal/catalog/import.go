package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/filmdex/internal/fileid"
	"github.com/hyperjump/filmdex/internal/models"
)

// ImportExtension is the extension of importable movie files.
const ImportExtension = ".json"

// ImportFile decodes path as a movie and upserts it under the id derived from the path.
func (s *Service) ImportFile(ctx context.Context, path string) (m *models.Movie, err error) {
	defer func() { s.metrics.ObserveImport("upsert", err) }()
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var in models.MovieInput
	if err := models.DecodeStrict(data, &in); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(absPath), err)
	}
	m, err = s.ImportRecord(ctx, fileid.MovieID(absPath), &in)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("movie imported", zap.String("path", absPath), zap.String("id", m.ID))
	return m, nil
}

// RemoveFile deletes the record imported from path.
func (s *Service) RemoveFile(ctx context.Context, path string) (err error) {
	defer func() { s.metrics.ObserveImport("delete", err) }()
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	id := fileid.MovieID(absPath)
	if err := s.DeleteRecord(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("imported movie removed", zap.String("path", absPath), zap.String("id", id))
	return nil
}

// ImportDirectory imports every movie file under dir. It returns the number imported and
// stops at the first failure.
func (s *Service) ImportDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !IsImportFile(path) {
			return nil
		}
		if _, err := s.ImportFile(ctx, path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

// IsImportFile reports whether path has the import extension, ignoring case.
func IsImportFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ImportExtension)
}

package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/pkg/errors"
)

// FileStorageConfig contains configuration for file-based experiment
// storage.
type FileStorageConfig struct {
	BasePath   string `json:"base_path" yaml:"base_path"`
	CreateDirs bool   `json:"create_dirs" yaml:"create_dirs"`
}

// FileStorage keeps one JSON document per experiment under a base
// directory.
type FileStorage struct {
	config    *FileStorageConfig
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool
}

const fileExtension = ".json"

// NewFileStorage creates a file storage instance.
func NewFileStorage(config *FileStorageConfig, logger *logrus.Logger) (*FileStorage, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "FileStorageConfig cannot be nil")
	}
	if config.BasePath == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "BasePath is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &FileStorage{config: config, logger: logger}, nil
}

// Connect verifies the base directory exists and is writable.
func (fs *FileStorage) Connect(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.connected {
		return nil
	}

	if fs.config.CreateDirs {
		if err := os.MkdirAll(fs.config.BasePath, 0o755); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
				fmt.Sprintf("failed to create directory: %s", fs.config.BasePath))
		}
	}

	if _, err := os.Stat(fs.config.BasePath); os.IsNotExist(err) {
		return errors.NewStorageError(errors.CodeConnectionFailed,
			fmt.Sprintf("base path does not exist: %s", fs.config.BasePath))
	}

	fs.connected = true
	fs.logger.WithField("base_path", fs.config.BasePath).Info("File storage connected")
	return nil
}

// Put writes a document, replacing any existing one with the same id.
func (fs *FileStorage) Put(ctx context.Context, id string, data []byte) error {
	if err := fs.checkConnected(); err != nil {
		return err
	}
	path, err := fs.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to write experiment %s", id))
	}
	fs.logger.WithFields(logrus.Fields{"experiment_id": id, "bytes": len(data)}).Debug("Wrote experiment file")
	return nil
}

// Get reads a document by id.
func (fs *FileStorage) Get(ctx context.Context, id string) ([]byte, error) {
	if err := fs.checkConnected(); err != nil {
		return nil, err
	}
	path, err := fs.pathFor(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NewExperimentError(errors.CodeExperimentNotFound,
			fmt.Sprintf("experiment %s not found", id))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to read experiment %s", id))
	}
	return data, nil
}

// List returns the ids of all stored documents in sorted order.
func (fs *FileStorage) List(ctx context.Context) ([]string, error) {
	if err := fs.checkConnected(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fs.config.BasePath)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to list experiment directory")
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExtension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), fileExtension))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a document by id.
func (fs *FileStorage) Delete(ctx context.Context, id string) error {
	if err := fs.checkConnected(); err != nil {
		return err
	}
	path, err := fs.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NewExperimentError(errors.CodeExperimentNotFound,
				fmt.Sprintf("experiment %s not found", id))
		}
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to delete experiment %s", id))
	}
	return nil
}

// Close marks the storage as disconnected.
func (fs *FileStorage) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.connected = false
	return nil
}

func (fs *FileStorage) checkConnected() error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if !fs.connected {
		return errors.NewStorageError(errors.CodeNotConnected, "file storage is not connected")
	}
	return nil
}

// pathFor rejects ids that would escape the base directory.
func (fs *FileStorage) pathFor(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("invalid experiment id: %q", id))
	}
	return filepath.Join(fs.config.BasePath, id+fileExtension), nil
}

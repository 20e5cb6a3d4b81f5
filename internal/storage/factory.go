package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	filestorage "github.com/inferloop/flsim/internal/storage/implementations/file"
	redisstorage "github.com/inferloop/flsim/internal/storage/implementations/redis"
	s3storage "github.com/inferloop/flsim/internal/storage/implementations/s3"
	"github.com/inferloop/flsim/pkg/errors"
)

// Supported backend types.
const (
	TypeFile  = "file"
	TypeRedis = "redis"
	TypeS3    = "s3"
)

// Factory creates experiment storage backends by type name.
type Factory struct {
	creators map[string]CreateFunc
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a storage factory with the default backends
// registered.
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]CreateFunc),
		logger:   logger,
	}
	factory.registerDefaults()
	return factory
}

// Create builds a new backend instance of the given type.
func (f *Factory) Create(backendType string, config Config) (Backend, error) {
	f.mu.RLock()
	createFunc, exists := f.creators[backendType]
	f.mu.RUnlock()

	if !exists {
		return nil, errors.NewStorageError(errors.CodeUnsupportedType,
			fmt.Sprintf("storage type %q is not supported", backendType))
	}

	backend, err := createFunc(config)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError,
			fmt.Sprintf("failed to create %s storage", backendType))
	}

	f.logger.WithField("storage_type", backendType).Info("Created storage backend")
	return backend, nil
}

// Register adds a backend type to the factory.
func (f *Factory) Register(backendType string, createFunc CreateFunc) error {
	if backendType == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "storage type cannot be empty")
	}
	if createFunc == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "storage create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[backendType] = createFunc
	return nil
}

// SupportedTypes returns all registered backend type names.
func (f *Factory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	return types
}

// IsSupported checks whether a backend type is registered.
func (f *Factory) IsSupported(backendType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.creators[backendType]
	return exists
}

func (f *Factory) registerDefaults() {
	f.Register(TypeFile, func(config Config) (Backend, error) {
		return filestorage.NewFileStorage(&filestorage.FileStorageConfig{
			BasePath:   config.BasePath,
			CreateDirs: true,
		}, f.logger)
	})

	f.Register(TypeRedis, func(config Config) (Backend, error) {
		return redisstorage.NewRedisStorage(&redisstorage.RedisConfig{
			Addr:      config.Addr,
			Password:  config.Password,
			DB:        config.DB,
			KeyPrefix: config.KeyPrefix,
			TTL:       time.Duration(config.TTLSeconds) * time.Second,
		}, f.logger)
	})

	f.Register(TypeS3, func(config Config) (Backend, error) {
		return s3storage.NewS3Storage(&s3storage.S3Config{
			Region:          config.Region,
			Bucket:          config.Bucket,
			Prefix:          config.Prefix,
			Endpoint:        config.Endpoint,
			AccessKeyID:     config.AccessKeyID,
			SecretAccessKey: config.SecretAccessKey,
			ForcePathStyle:  config.ForcePathStyle,
		}, f.logger)
	})
}

package storage

import "context"

// Backend stores experiment documents as opaque byte blobs keyed by
// experiment id. Encoding and schema validation live in the experiment
// store; backends only move bytes.
type Backend interface {
	// Connect prepares the backend for use.
	Connect(ctx context.Context) error
	// Put stores a document under the given id, overwriting any previous
	// version.
	Put(ctx context.Context, id string, data []byte) error
	// Get retrieves a document by id.
	Get(ctx context.Context, id string) ([]byte, error)
	// List returns the ids of all stored documents.
	List(ctx context.Context) ([]string, error)
	// Delete removes a document by id.
	Delete(ctx context.Context, id string) error
	// Close releases the backend's resources.
	Close() error
}

// Config carries the settings shared by all backend types. Unused fields
// are ignored by backends that do not need them.
type Config struct {
	Type            string `json:"type" yaml:"type"`
	BasePath        string `json:"base_path" yaml:"base_path"`
	Addr            string `json:"addr" yaml:"addr"`
	Password        string `json:"password" yaml:"password"`
	DB              int    `json:"db" yaml:"db"`
	KeyPrefix       string `json:"key_prefix" yaml:"key_prefix"`
	TTLSeconds      int    `json:"ttl_seconds" yaml:"ttl_seconds"`
	Region          string `json:"region" yaml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `json:"force_path_style" yaml:"force_path_style"`
}

// CreateFunc builds a backend from a configuration.
type CreateFunc func(config Config) (Backend, error)

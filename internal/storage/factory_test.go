package storage

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryDefaults(t *testing.T) {
	factory := NewFactory(logrus.New())

	assert.True(t, factory.IsSupported(TypeFile))
	assert.True(t, factory.IsSupported(TypeRedis))
	assert.True(t, factory.IsSupported(TypeS3))
	assert.False(t, factory.IsSupported("clickhouse"))
	assert.ElementsMatch(t, []string{TypeFile, TypeRedis, TypeS3}, factory.SupportedTypes())
}

func TestFactoryCreateFile(t *testing.T) {
	factory := NewFactory(logrus.New())

	backend, err := factory.Create(TypeFile, Config{BasePath: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, backend.Connect(context.Background()))
	defer backend.Close()

	require.NoError(t, backend.Put(context.Background(), "exp", []byte("{}")))
	ids, err := backend.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"exp"}, ids)
}

func TestFactoryCreateUnknownType(t *testing.T) {
	factory := NewFactory(logrus.New())
	_, err := factory.Create("carrier-pigeon", Config{})
	assert.Error(t, err)
}

func TestFactoryRegisterValidation(t *testing.T) {
	factory := NewFactory(logrus.New())

	assert.Error(t, factory.Register("", func(Config) (Backend, error) { return nil, nil }))
	assert.Error(t, factory.Register("custom", nil))

	require.NoError(t, factory.Register("custom", func(Config) (Backend, error) { return nil, nil }))
	assert.True(t, factory.IsSupported("custom"))
}

func TestFactoryCreateRedisRequiresAddr(t *testing.T) {
	factory := NewFactory(logrus.New())
	_, err := factory.Create(TypeRedis, Config{})
	assert.Error(t, err)
}

func TestFactoryCreateS3RequiresBucket(t *testing.T) {
	factory := NewFactory(logrus.New())
	_, err := factory.Create(TypeS3, Config{})
	assert.Error(t, err)
}

package factory

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/storage/memory"
)

func TestNewBackend_Memory(t *testing.T) {
	logManager := logging.NewSlogManager()
	logManager.Setup(nil, "info", nil)

	b, err := NewBackend(config.StorageConfig{Type: "memory"}, logManager, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := b.(*memory.Backend); !ok {
		t.Errorf("expected memory backend, got %T", b)
	}
}

func TestNewBackend_UnknownType(t *testing.T) {
	logManager := logging.NewSlogManager()
	logManager.Setup(nil, "info", nil)

	_, err := NewBackend(config.StorageConfig{Type: "tape"}, logManager, zerolog.Nop())
	if err == nil {
		t.Error("expected error for unknown storage type")
	}
}

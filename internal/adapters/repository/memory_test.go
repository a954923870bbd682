package repository_test

import (
	"testing"

	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/adapters/repository/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store { return repository.NewMemoryStore() })
}

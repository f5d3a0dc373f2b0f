package badger_test

import (
	"testing"

	"github.com/tidemark/tidemark/internal/datastore"
	"github.com/tidemark/tidemark/internal/datastore/badger"
	"github.com/tidemark/tidemark/internal/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) datastore.Storage {
		store, err := badger.OpenInMemory()
		if err != nil {
			t.Fatalf("open badger store: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

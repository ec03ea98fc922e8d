package mdstore_test

import (
	"testing"

	"coldpack/internal/mdstore"
	"coldpack/internal/mdstore/mdstoretest"
)

func TestMemoryStore(t *testing.T) {
	mdstoretest.Run(t, mdstore.NewMemoryStore(), func(t *testing.T) mdstore.KV {
		return mdstore.NewMemoryStore()
	})
}

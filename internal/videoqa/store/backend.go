package store

import (
	"fmt"

	"github.com/kart-io/videoqa/pkg/component/milvus"
	"github.com/kart-io/videoqa/pkg/component/postgres"
)

// Clients carries the connections a backend may need. Only the one matching
// the selected backend has to be set.
type Clients struct {
	Milvus   *milvus.Client
	Postgres *postgres.Client
}

// NewBackend returns the backend registered under name.
func NewBackend(name string, clients Clients) (Backend, error) {
	switch name {
	case "", BackendMemory:
		return NewMemoryBackend(), nil
	case BackendMilvus:
		if clients.Milvus == nil {
			return nil, fmt.Errorf("milvus backend requires a milvus client")
		}
		return NewMilvusBackend(clients.Milvus), nil
	case BackendPGVector:
		if clients.Postgres == nil {
			return nil, fmt.Errorf("pgvector backend requires a postgres client")
		}
		return NewPGVectorBackend(clients.Postgres), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", name)
	}
}

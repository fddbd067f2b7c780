package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memhub/memoryd/pkg/store"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(store.JobTypeEmbedTurn, func(ctx context.Context, job *store.Job) error {
		called = true
		return nil
	})

	h, ok := r.lookup(store.JobTypeEmbedTurn)
	assert.True(t, ok)
	assert.NoError(t, h(context.Background(), &store.Job{}))
	assert.True(t, called)

	_, ok = r.lookup("unknown")
	assert.False(t, ok)
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityHas(t *testing.T) {
	lexOnly := CapInsert | CapLexical

	assert.True(t, lexOnly.Has(CapInsert))
	assert.True(t, lexOnly.Has(CapLexical))
	assert.False(t, lexOnly.Has(CapVector))
	assert.False(t, lexOnly.Has(CapInsert|CapVector), "Has requires every bit")
	assert.True(t, CapAll.Has(CapHybrid))
	assert.True(t, CapAll.Has(lexOnly))
}

func TestBatches(t *testing.T) {
	records := make([]Record, 7)
	for i := range records {
		records[i].ID = fmt.Sprintf("%d", i)
	}

	batches := Batches(records, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1, "the tail batch keeps the remainder")
	assert.Equal(t, "6", batches[2][0].ID)

	assert.Len(t, Batches(records, 100), 1)
	assert.Nil(t, Batches(records, 0))
	assert.Nil(t, Batches(nil, 10))
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrUnsupported, "solr", "vector search not available")
	assert.Equal(t, "solr: unsupported-operation: vector search not available", err.Error())

	cause := errors.New("dial tcp: connection refused")
	wrapped := WrapError(ErrConnection, "es", "health check", cause)
	assert.Equal(t, "es: connection: health check: dial tcp: connection refused", wrapped.Error())
	assert.Equal(t, cause, errors.Unwrap(wrapped))
	assert.True(t, errors.Is(wrapped, cause))
}

func TestWrapErrorTimeoutOverride(t *testing.T) {
	err := WrapError(ErrMalformed, "qdrant", "search", context.DeadlineExceeded)
	assert.Equal(t, ErrTimeout, err.Kind, "deadline errors are always timeouts")

	err = WrapError(ErrConnection, "qdrant", "search", context.Canceled)
	assert.Equal(t, ErrTimeout, err.Kind)

	err = WrapError(ErrMalformed, "qdrant", "search", errors.New("bad json"))
	assert.Equal(t, ErrMalformed, err.Kind)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrConnection, KindOf(NewError(ErrConnection, "es", "refused")))

	wrapped := fmt.Errorf("phase failed: %w", NewError(ErrTimeout, "es", "deadline"))
	assert.Equal(t, ErrTimeout, KindOf(wrapped))

	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

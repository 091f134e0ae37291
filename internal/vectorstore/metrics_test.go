package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumented_RecordsOperations(t *testing.T) {
	const provider = "metrics_test"
	inner := &fakeStore{matches: []Match{{ID: "a-0"}}}
	store := Instrument(NewGuard(inner, 2), provider)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []Record{{ID: "a-0", Values: []float32{1, 0}}, {ID: "a-1", Values: []float32{0, 1}}})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, []Record{{ID: "a-2", Values: []float32{1}}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = store.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)

	inner.queryErr = errors.New("down")
	_, err = store.Query(ctx, []float32{1, 0}, 3)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(provider, "upsert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(provider, "upsert", "dimension_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(provider, "query", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(provider, "query", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(RecordsUpserted.WithLabelValues(provider)))
}

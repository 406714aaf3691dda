package metrics_test

import (
	"encoding/json"
	"testing"

	"github.com/abadid/SLOG/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64SetSortedOrderIsStable(t *testing.T) {
	s := metrics.NewUint64Set()
	s.Add(30)
	s.Add(10)
	s.Add(20)
	s.Add(10) // duplicate, no-op

	assert.Equal(t, []uint64{10, 20, 30}, s.Sorted())
	assert.Equal(t, 3, s.Len())

	s.Remove(20)
	assert.Equal(t, []uint64{10, 30}, s.Sorted())
}

func TestUint64SetMarshalsAsSortedArray(t *testing.T) {
	s := metrics.NewUint64Set()
	s.Add(2)
	s.Add(1)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(b))
}

func TestStringSetSortedOrder(t *testing.T) {
	s := metrics.NewStringSet()
	s.Add("banana")
	s.Add("apple")
	s.Add("cherry")
	assert.Equal(t, []string{"apple", "banana", "cherry"}, s.Sorted())
}

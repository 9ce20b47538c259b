package model

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trader/internal/domain"
)

func TestStatic(t *testing.T) {
	c, err := Static(0.7).Confidence(context.Background(), domain.Candidate{})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, c, 1e-12)

	c, _ = Static(3).Confidence(context.Background(), domain.Candidate{})
	assert.Equal(t, 1.0, c)
	c, _ = Static(math.NaN()).Confidence(context.Background(), domain.Candidate{})
	assert.Equal(t, 0.0, c)
}

func TestFunc(t *testing.T) {
	boom := errors.New("boom")
	o := Func(func(context.Context, domain.Candidate) (float64, error) { return 0, boom })
	_, err := o.Confidence(context.Background(), domain.Candidate{})
	assert.ErrorIs(t, err, boom)
}

func TestFeatures(t *testing.T) {
	f := Features(domain.Candidate{
		PriceChange1h: 10, PriceChange6h: 20, PriceChange24h: -50,
		Volume24h: 300, AvgVolume7d: 100, Holders: -5,
	})
	require.Len(t, f, NumFeatures)
	assert.InDelta(t, 0.1, f[0], 1e-6)
	assert.InDelta(t, -0.5, f[2], 1e-6)
	assert.InDelta(t, 3.0, f[4], 1e-6)
	assert.Equal(t, float32(0), f[7], "negative holders clamp")
}

// Requires TRADER_ONNX_MODEL pointing at a compatible model and the
// onnxruntime shared library on the host.
func TestONNXOracle(t *testing.T) {
	path := os.Getenv("TRADER_ONNX_MODEL")
	if path == "" {
		t.Skip("TRADER_ONNX_MODEL not set")
	}
	o, err := NewONNXOracle(path, os.Getenv("TRADER_ONNX_LIB"))
	require.NoError(t, err)
	defer o.Close()

	c, err := o.Confidence(context.Background(), domain.Candidate{Asset: "MintA", Price: 1})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c, 0.0)
	assert.LessOrEqual(t, c, 1.0)

	o.Close()
	_, err = o.Confidence(context.Background(), domain.Candidate{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

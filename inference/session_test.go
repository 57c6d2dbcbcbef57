package inference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nvr-ai/go-detect/models/model"
)

func TestSession_Closed(t *testing.T) {
	s := &Session{}

	_, err := s.Infer(context.Background(), make([]float32, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "closing twice is a no-op")
}

func TestSession_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Session{}).Infer(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSession_InvalidConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewSession(model.Config{}, SessionOptions{}, logger)
	assert.Error(t, err)

	cfg := model.YOLO11n("yolo11n.onnx")
	cfg.Rows = 0
	_, err = NewSession(cfg, SessionOptions{}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row count")
}

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubConnector struct {
	failures int
	calls    int
}

func (s *stubConnector) Connect(context.Context) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("rpc not ready")
	}
	return nil
}

func TestConnectWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{name: "first attempt succeeds", failures: 0, attempts: 3, wantCalls: 1},
		{name: "recovers within budget", failures: 2, attempts: 3, wantCalls: 3},
		{name: "gives up after last attempt", failures: 5, attempts: 3, wantErr: true, wantCalls: 3},
		{name: "attempts floor is one", failures: 1, attempts: 0, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &stubConnector{failures: tt.failures}

			err := connectWithRetry(context.Background(), conn, tt.attempts, time.Millisecond, zap.NewNop())

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, conn.calls)
		})
	}
}

func TestConnectWithRetry_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &stubConnector{failures: 10}

	err := connectWithRetry(ctx, conn, 3, time.Minute, zap.NewNop())

	require.Error(t, err)
	assert.Equal(t, 1, conn.calls)
}

package artifacts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunReaper_ReclaimsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStore(nil)

	_, err := s.Put(ctx, "abandoned", MediaReply, []byte("x"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		RunReaper(ctx, s, 5*time.Millisecond, 0, zap.NewNop().Sugar())
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr(), time.Second)
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestNewFailsOnUnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), addr, 200*time.Millisecond)
	require.ErrorContains(t, err, "platform/cache: ping")
}

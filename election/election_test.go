package election

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlways(t *testing.T) {
	var l Leader = Always{}
	assert.True(t, l.IsLeader())
}

func TestElectorStartsAsFollower(t *testing.T) {
	e := New(nil, "node-1", WithPrefix("/test/election"), WithTTL(3))
	assert.False(t, e.IsLeader())
	assert.Equal(t, "/test/election", e.prefix)
	assert.Equal(t, 3, e.ttl)
}

func TestNodeID(t *testing.T) {
	id := NodeID("10.0.0.7")
	assert.True(t, strings.HasPrefix(id, "leadcrawler-"))
	assert.Contains(t, id, "-10.0.0.7-")
	assert.True(t, strings.HasSuffix(id, "-"+strconv.Itoa(os.Getpid())))
}

// blockingCampaign blocks every Campaign call until release is closed.
type blockingCampaign struct {
	calls   int32
	release chan struct{}
	err     error
}

func (b *blockingCampaign) Campaign(ctx context.Context, val string) error {
	atomic.AddInt32(&b.calls, 1)
	select {
	case <-b.release:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStartElectSingleFlight(t *testing.T) {
	e := New(nil, "node-1")
	camp := &blockingCampaign{release: make(chan struct{})}
	ch := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.True(t, e.startElect(ctx, camp, ch))
	assert.False(t, e.startElect(ctx, camp, ch))
	assert.False(t, e.startElect(ctx, camp, ch))

	close(camp.release)
	select {
	case err := <-ch:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("campaign result not delivered")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&camp.calls))

	// a new campaign may start once the result was consumed
	atomic.StoreInt32(&e.campaigning, 0)
	assert.True(t, e.startElect(ctx, camp, ch))
	<-ch
	assert.Equal(t, int32(2), atomic.LoadInt32(&camp.calls))
}

func TestElectExitsOnShutdown(t *testing.T) {
	e := New(nil, "node-1")
	camp := &blockingCampaign{release: make(chan struct{}), err: errors.New("lost")}
	ch := make(chan error, 1)
	ch <- errors.New("unread result")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.elect(ctx, camp, ch)
		close(done)
	}()
	close(camp.release)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("elect blocked after shutdown")
	}
}

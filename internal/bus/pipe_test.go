package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moven0831/proofqueue/internal/bus"
	"github.com/moven0831/proofqueue/internal/domain"
)

func TestPipe_RoundTrip(t *testing.T) {
	client, worker := bus.NewPipe(4)

	err := client.Send(context.Background(), bus.CancelTask{TaskID: "t-1"})
	require.NoError(t, err)

	select {
	case frame := <-worker.Inbound():
		msg, err := bus.Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, bus.CancelTask{TaskID: "t-1"}, msg)
	case <-time.After(time.Second):
		t.Fatal("frame never arrived")
	}
}

func TestPipe_BothDirections(t *testing.T) {
	client, worker := bus.NewPipe(4)

	require.NoError(t, worker.Send(context.Background(), bus.ServiceReady{Timestamp: time.Now().UTC()}))

	select {
	case frame := <-client.Inbound():
		msg, err := bus.Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, bus.EventServiceReady, msg.Event())
	case <-time.After(time.Second):
		t.Fatal("frame never arrived")
	}
}

func TestPipe_SendRespectsContext(t *testing.T) {
	client, _ := bus.NewPipe(0) // unbuffered, nobody reading

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := client.Send(ctx, bus.StopService{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipe_SendAfterClose(t *testing.T) {
	client, _ := bus.NewPipe(0)
	client.Close()
	client.Close() // idempotent

	err := client.Send(context.Background(), bus.StopService{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := bus.NewBroadcaster()
	defer b.Close()

	s1 := b.Subscribe(bus.EventTaskQueued)
	s2 := b.Subscribe(bus.EventTaskQueued)
	other := b.Subscribe(bus.EventTaskFailed)

	b.Publish(bus.TaskQueued{TaskID: "t-1", Kind: domain.KindSetupPrepare, QueueLength: 1})

	for _, sub := range []*bus.Subscription{s1, s2} {
		select {
		case msg := <-sub.C:
			assert.Equal(t, "t-1", msg.(bus.TaskQueued).TaskID)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the message")
		}
	}

	select {
	case <-other.C:
		t.Fatal("failed-stream subscriber must not see queued events")
	default:
	}
}

func TestBroadcaster_NoReplay(t *testing.T) {
	b := bus.NewBroadcaster()
	defer b.Close()

	b.Publish(bus.TaskQueued{TaskID: "before"})
	late := b.Subscribe(bus.EventTaskQueued)
	b.Publish(bus.TaskQueued{TaskID: "after"})

	select {
	case msg := <-late.C:
		assert.Equal(t, "after", msg.(bus.TaskQueued).TaskID,
			"late subscriber must only see events published after subscribing")
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	select {
	case msg := <-late.C:
		t.Fatalf("unexpected replayed message: %v", msg)
	default:
	}
}

func TestBroadcaster_Cancel(t *testing.T) {
	b := bus.NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe(bus.EventServiceError)
	sub.Cancel()
	b.Publish(bus.ServiceError{Error: "x"})

	_, open := <-sub.C
	assert.False(t, open, "cancelled subscription channel must be closed")
}

func TestBroadcaster_SlowSubscriberDropsOldest(t *testing.T) {
	b := bus.NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe(bus.EventTaskQueued)
	// Overflow the buffer without reading; publisher must never block.
	for i := 0; i < 200; i++ {
		b.Publish(bus.TaskQueued{TaskID: "t", QueueLength: i})
	}

	// The newest message survives at the tail of the buffer.
	var last bus.Message
	for {
		select {
		case msg := <-sub.C:
			last = msg
			continue
		default:
		}
		break
	}
	require.NotNil(t, last)
	assert.Equal(t, 199, last.(bus.TaskQueued).QueueLength)
}

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downloadengine/internal/download"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Emit(Changed{Download: download.Record{Path: "/tmp/a.bin", Status: download.StatusIdle}})

	select {
	case msg := <-ch:
		assert.Equal(t, "/tmp/a.bin", msg.Download.Path)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusFanoutToMultipleSubscribers(t *testing.T) {
	b := NewBus()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Emit(Changed{Download: download.Record{Path: "/tmp/a.bin"}})

	for _, ch := range []<-chan Changed{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fanout event")
		}
	}
}

func TestBusDropsWhenSubscriberBufferFull(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	// Flood well past the subscriber buffer without ever reading; Emit must
	// not block regardless of how far behind the subscriber falls.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Emit(Changed{Download: download.Record{Path: "/tmp/a.bin"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber buffer")
	}

	assert.LessOrEqual(t, len(ch), subscriberBuffer)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// Idempotent.
	unsubscribe()
}

func TestBusEmitAfterUnsubscribeDoesNotPanic(t *testing.T) {
	b := NewBus()
	_, unsubscribe := b.Subscribe()
	unsubscribe()

	require.NotPanics(t, func() {
		b.Emit(Changed{Download: download.Record{Path: "/tmp/a.bin"}})
	})
}

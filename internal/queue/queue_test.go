package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeRecord, Body: []byte(`{"meeting_id":"m1"}`)}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, TypeRecord, msg.Type)
		assert.Equal(t, `{"meeting_id":"m1"}`, string(msg.Body))
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Message{Type: TypeRecord}))

	// Queue full: a cancelled context unblocks the publisher.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, q.Publish(cancelled, Message{Type: TypeRecord}))
}

func TestSerializeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"plain", Message{Type: TypeRecord, Body: []byte("abc")}},
		{"body with separator", Message{Type: TypeRecord, Body: []byte(`a|b|c`)}},
		{"empty body", Message{Type: TypeRecord, Body: []byte("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deserialize(serialize(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Type, got.Type)
			assert.Equal(t, string(tt.msg.Body), string(got.Body))
		})
	}
}

package broker

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"relay/internal/relay"
)

func TestPublishing(t *testing.T) {
	r := relay.NewRecord("orders", []byte("k"), []byte("v")).WithPartition(2)
	r.Headers = map[string]string{"trace": "abc"}

	p := Publishing(r)

	assert.Equal(t, r.ID, p.MessageId)
	assert.Equal(t, []byte("v"), p.Body)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, int32(2), p.Headers[HeaderPartition])
	assert.Equal(t, []byte("k"), p.Headers[HeaderKey])
	assert.Equal(t, "abc", p.Headers["trace"])
	assert.NoError(t, p.Headers.Validate())
}

func TestPublishing_NoHints(t *testing.T) {
	p := Publishing(relay.Record{ID: "1", Value: []byte("v")})

	assert.NotContains(t, p.Headers, HeaderPartition)
	assert.NotContains(t, p.Headers, HeaderKey)
}

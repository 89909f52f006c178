package amqp_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/events"
	amqpevents "github.com/mateer-t1/music-moments-api/pkg/clips/events/amqp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set")
	}

	exchange := "clips.events.test"
	pub, err := amqpevents.Dial(url, exchange)
	require.NoError(t, err)
	defer pub.Close()

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, events.TypeClipCreated, exchange, false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	sink := events.NewSink(pub, "")
	clip := &clips.Clip{ID: "c1", OwnerID: "alice", Title: "Demo", Status: clips.ClipStatusPendingUpload}
	require.NoError(t, sink.ClipCreated(context.Background(), clip))

	select {
	case d := <-deliveries:
		assert.Equal(t, events.ContentType, d.ContentType)
		assert.Equal(t, "alice", d.Headers["owner_id"])
		ev, data, err := events.Decode(d.Body)
		require.NoError(t, err)
		assert.Equal(t, events.TypeClipCreated, ev.Type())
		assert.Equal(t, "c1", data.Clip.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery received")
	}
}

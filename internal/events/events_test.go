package events_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/warehouse-backend/internal/events"
)

func TestMemoryPublisher(t *testing.T) {
	m := &events.Memory{}
	ctx := context.Background()

	require.NoError(t, m.Publish(ctx, events.SubjectLowStock, events.LowStock{ProductID: "p1"}))
	require.NoError(t, m.Publish(ctx, events.SubjectTaskFinished, events.TaskFinished{TaskID: "t1"}))

	assert.Len(t, m.Messages(""), 2)
	got := m.Messages(events.SubjectTaskFinished)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].Payload.(events.TaskFinished).TaskID)
}

func TestNATSPublisherRequiresURL(t *testing.T) {
	_, err := events.NewNATSPublisher(events.NATSConfig{})
	assert.Error(t, err)
}

func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	pub, err := events.NewNATSPublisher(events.NATSConfig{URL: url, Prefix: "test"})
	require.NoError(t, err)
	defer pub.Close()

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()
	sub, err := conn.SubscribeSync("test." + events.SubjectTaskFinished)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	err = pub.Publish(context.Background(), events.SubjectTaskFinished, events.TaskFinished{TaskID: "t1"})
	require.NoError(t, err)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var got events.TaskFinished
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "t1", got.TaskID)
}

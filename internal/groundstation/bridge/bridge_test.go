package bridge

import (
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspirers/groundstation/internal/groundstation/protocol"
)

type fakeDispatcher struct {
	received []protocol.CommandMessage
}

func (f *fakeDispatcher) EnqueueCommand(cmd protocol.CommandMessage) {
	f.received = append(f.received, cmd)
}

func newTestBridge(d Dispatcher) *Bridge {
	return New(nil, "drone_commands", d, logrus.NewEntry(logrus.New()))
}

func TestHandleForwardsWellFormedCommand(t *testing.T) {
	d := &fakeDispatcher{}
	b := newTestBridge(d)

	msg := &redis.Message{
		Channel: "drone_commands",
		Payload: `{"target_drone_id":2,"command":"takeoff","payload":{"h":30},"timestamp":0}`,
	}
	b.handle(msg)

	require.Len(t, d.received, 1)
	assert.Equal(t, 2, d.received[0].TargetDroneID)
	assert.Equal(t, "takeoff", d.received[0].Command)
	assert.Equal(t, float64(30), d.received[0].Payload["h"])
}

func TestHandleDropsMalformedCommand(t *testing.T) {
	d := &fakeDispatcher{}
	b := newTestBridge(d)

	b.handle(&redis.Message{Channel: "drone_commands", Payload: `not json`})

	assert.Empty(t, d.received, "malformed command must never reach the dispatcher")
}

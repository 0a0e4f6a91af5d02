// Package bridge runs the Command Bridge: a dedicated goroutine that blocks
// on the external command channel and hands each decoded command to the
// server loop without ever touching connection state itself.
package bridge

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inspirers/groundstation/internal/groundstation/cache"
	"github.com/inspirers/groundstation/internal/groundstation/protocol"
)

// Dispatcher is the narrow interface the bridge needs from the server loop:
// a single channel onto which decoded commands are enqueued. The server
// loop owns connection state; the bridge never mutates it directly.
type Dispatcher interface {
	EnqueueCommand(protocol.CommandMessage)
}

// Bridge subscribes to the shared cache's command channel and forwards
// every decoded CommandMessage to a Dispatcher.
type Bridge struct {
	adapter    *cache.Adapter
	channel    string
	dispatcher Dispatcher
	log        *logrus.Entry
}

// New constructs a Bridge. It does not subscribe until Run is called.
func New(adapter *cache.Adapter, channel string, dispatcher Dispatcher, log *logrus.Entry) *Bridge {
	return &Bridge{
		adapter:    adapter,
		channel:    channel,
		dispatcher: dispatcher,
		log:        log.WithField("component", "bridge"),
	}
}

// Run subscribes to the command channel and forwards messages until ctx is
// cancelled. When the subscription's message channel closes it waits 5
// seconds and resubscribes; this loop never returns except via ctx
// cancellation.
func (b *Bridge) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		b.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
			b.log.Info("resubscribing to command channel")
		}
	}
}

func (b *Bridge) runOnce(ctx context.Context) {
	msgs, closeSub := b.adapter.Subscribe(ctx, b.channel)
	defer func() {
		if err := closeSub(); err != nil {
			b.log.WithError(err).Warn("error closing command subscription")
		}
	}()

	b.log.Info("subscribed to command channel")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				b.log.Warn("command subscription closed")
				return
			}
			b.handle(msg)
		}
	}
}

func (b *Bridge) handle(msg *redis.Message) {
	cmd, err := protocol.ParseCommandMessage([]byte(msg.Payload))
	if err != nil {
		b.log.WithError(err).Warn("dropping malformed command message")
		return
	}
	b.log.WithFields(logrus.Fields{
		"target_drone_id": cmd.TargetDroneID,
		"command":         cmd.Command,
	}).Info("command received")
	b.dispatcher.EnqueueCommand(cmd)
}

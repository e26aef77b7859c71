package syncer

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Wake listens on a Redis pub/sub channel so external processes (another
// agent on the same host, an operator script) can nudge the coordinator.
// The durable store stays the source of truth; the channel is only a
// scheduling hint.
type Wake struct {
	client  *redis.Client
	channel string
	coord   *Coordinator
	logger  *zerolog.Logger
}

func NewWake(client *redis.Client, channel string, coord *Coordinator, logger *zerolog.Logger) *Wake {
	return &Wake{client: client, channel: channel, coord: coord, logger: logger}
}

// Run subscribes and triggers the coordinator per message until ctx is done.
func (w *Wake) Run(ctx context.Context) {
	pubsub := w.client.Subscribe(ctx, w.channel)
	defer pubsub.Close()

	w.logger.Info().Str("channel", w.channel).Msg("redis wake channel subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.logger.Debug().Str("payload", msg.Payload).Msg("wake message received")
			w.coord.Trigger(TriggerWake)
		}
	}
}

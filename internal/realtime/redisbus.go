package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redis channel prefix for fan-out events
const channelPrefix = "fanout:"

// RedisBus fans out across processes over Redis Pub/Sub. Every process
// pattern-subscribes to the fan-out namespace and delivers each received
// event to its own directory; a group with no local members is a cheap
// no-op. Local members also receive events through the Redis round trip, so
// ordering seen by one member is the channel's publish order regardless of
// which process the sender lives on.
type RedisBus struct {
	client *redis.Client
	dir    *Directory
	log    zerolog.Logger
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBus creates a cross-process bus and starts its receive loop.
func NewRedisBus(ctx context.Context, redisURL string, dir *Directory, log zerolog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	b := &RedisBus{
		client: client,
		dir:    dir,
		log:    log,
		pubsub: client.PSubscribe(ctx, channelPrefix+"*"),
		done:   make(chan struct{}),
	}
	go b.receive()
	return b, nil
}

// Publish marshals the event and publishes it on the group's Redis channel.
// Delivery to local members happens in the receive loop.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+ev.Group, data).Err()
}

// Close stops the receive loop and closes the Redis connection.
func (b *RedisBus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *RedisBus) receive() {
	defer close(b.done)

	for msg := range b.pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping undecodable bus event")
			continue
		}
		deliverLocal(b.dir, ev)
	}
}

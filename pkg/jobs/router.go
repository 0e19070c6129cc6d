package jobs

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/go-go-golems/geppetto/pkg/events"
	"github.com/go-go-golems/geppetto/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// BuildRouter constructs an events.EventRouter carrying call jobs. With Redis disabled
// the router is in-memory and only reaches handlers in the same process.
func BuildRouter(ctx context.Context, s Settings) (*events.EventRouter, error) {
	if !s.RedisEnabled {
		return events.NewEventRouter()
	}

	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", s.RedisAddr)
	}
	return newStreamRouter(client, s)
}

// newStreamRouter owns client: it is closed when the router cannot be built.
func newStreamRouter(client redis.UniversalClient, s Settings) (_ *events.EventRouter, err error) {
	defer func() {
		if err != nil {
			_ = client.Close()
		}
	}()

	// Without a consumer group every worker would receive every job.
	if s.Group == "" {
		return nil, errors.New("redis stream consumer group is required")
	}

	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := helpers.NewWatermill(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "redis stream publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "redis stream subscriber")
	}

	log.Debug().
		Str("addr", s.RedisAddr).
		Str("group", s.Group).
		Str("consumer", s.Consumer).
		Msg("using redis streams job transport")

	return events.NewEventRouter(
		events.WithPublisher(message.Publisher(pub)),
		events.WithSubscriber(message.Subscriber(sub)),
	)
}

package marketdata

import (
	"context"
	"encoding/json"

	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes ticks to a redis channel so every replica's hub
// can relay them.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, tick *models.TokenPriceTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

// RelayToHub forwards messages from the redis channel to hub until ctx is done.
func RelayToHub(ctx context.Context, client *redis.Client, channel string, hub *Hub, logger *zap.Logger) {
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()

	logger.Info("Relaying ticks from redis", zap.String("channel", channel))
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			hub.Broadcast([]byte(msg.Payload))
		}
	}
}

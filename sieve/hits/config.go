package hits

import (
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/keysieve/sieve/config"

	"github.com/rs/zerolog"
)

// NewNotifier builds the configured notifier wrapped in an AsyncNotifier.
func NewNotifier(cfg config.NotifyConfig, logger zerolog.Logger) (*AsyncNotifier, error) {
	var next Notifier
	switch cfg.Kind {
	case "", "none":
		next = NopNotifier{}
	case "webhook":
		var token string
		if cfg.TokenEnv != "" {
			token = os.Getenv(cfg.TokenEnv)
		}
		next = NewWebhookNotifier(cfg.Endpoint, token, cfg.Timeout())
	case "kafka":
		k, err := NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		next = k
	default:
		return nil, fmt.Errorf("unknown notifier kind %q", cfg.Kind)
	}

	logger.Debug().Str("kind", cfg.Kind).Int("perMinute", cfg.PerMinute).Msg("notifier configured")
	return NewAsyncNotifier(next, cfg.PerMinute, cfg.Timeout(), logger), nil
}

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAppenderConfig - параметры публикации аудита в Redis
type RedisAppenderConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix - префикс ключей, по умолчанию "semlayer:audit"
	Prefix string
	// TTL - время жизни ключа состояния
	TTL   time.Duration
	Level Level
}

// RedisAppender публикует записи аудита в Redis:
//
//	SET  <prefix>:<dataset>:state  <JSON>  EX <ttl>  последнее состояние датасета
//	PUB  <prefix>:<operation>      <JSON>            поток событий для подписчиков
type RedisAppender struct {
	client redis.UniversalClient
	config RedisAppenderConfig
}

// NewRedisAppender создает клиента по конфигурации
func NewRedisAppender(config RedisAppenderConfig) *RedisAppender {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisAppenderWithClient(client, config)
}

// NewRedisAppenderWithClient использует готовый клиент
func NewRedisAppenderWithClient(client redis.UniversalClient, config RedisAppenderConfig) *RedisAppender {
	if config.Prefix == "" {
		config.Prefix = "semlayer:audit"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.Level == 0 {
		config.Level = LevelStandard
	}
	return &RedisAppender{client: client, config: config}
}

// StateKey ключ последнего состояния датасета
func (ra *RedisAppender) StateKey(dataset string) string {
	if dataset == "" {
		dataset = "_"
	}
	return fmt.Sprintf("%s:%s:state", ra.config.Prefix, dataset)
}

// Channel канал событий операции
func (ra *RedisAppender) Channel(op Operation) string {
	return fmt.Sprintf("%s:%s", ra.config.Prefix, op)
}

// Append - SET состояния и PUBLISH события
func (ra *RedisAppender) Append(ctx context.Context, entry *Entry) error {
	payload, err := entry.FilterByLevel(ra.config.Level).ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if err := ra.client.Set(ctx, ra.StateKey(entry.Dataset), payload, ra.config.TTL).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := ra.client.Publish(ctx, ra.Channel(entry.Operation), payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (ra *RedisAppender) Close() error {
	return ra.client.Close()
}

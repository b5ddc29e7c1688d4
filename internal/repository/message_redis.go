package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"support_chat/internal/domain"
	"support_chat/pkg/logger"
)

const (
	// Сообщения identity в sorted set, score - время в микросекундах.
	// При равном score Redis сортирует JSON лексикографически, а JSON начинается с id.
	ChatIdentityMessagesKey = "chat:identity:%s:messages"
	ChatIdentitiesKey       = "chat:identities"
)

type redisMessageRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewRedisMessageRepository(rdb *redis.Client, log logger.Logger) MessageRepository {
	return &redisMessageRepository{rdb: rdb, log: log}
}

func (r *redisMessageRepository) messagesKey(identity string) string {
	return fmt.Sprintf(ChatIdentityMessagesKey, identity)
}

func (r *redisMessageRepository) Append(ctx context.Context, message *domain.ChatMessage) error {
	messageJSON, err := json.Marshal(message)
	if err != nil {
		r.log.Error("Failed to marshal message", "error", err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.messagesKey(message.Identity), redis.Z{
			Score:  float64(message.Timestamp.UnixMicro()),
			Member: messageJSON,
		})
		pipe.SAdd(ctx, ChatIdentitiesKey, message.Identity)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to save message to Redis", "error", err, "identity", message.Identity)
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (r *redisMessageRepository) ListByIdentity(ctx context.Context, identity string) ([]*domain.ChatMessage, error) {
	messagesJSON, err := r.rdb.ZRange(ctx, r.messagesKey(identity), 0, -1).Result()
	if err != nil && err != redis.Nil {
		r.log.Error("Failed to get messages from Redis", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages, err := decodeMembers(messagesJSON)
	if err != nil {
		r.log.Error("Failed to unmarshal message", "error", err, "identity", identity)
		return nil, err
	}
	// Порядок score совпадает с (timestamp, id), сортировка только страхует от округления
	domain.SortMessages(messages)
	return messages, nil
}

// decodeMembers не пропускает битые записи: история и экспорт без них
// разошлись бы с числом сообщений, которое удаляет DeleteByIdentity
func decodeMembers(members []string) ([]*domain.ChatMessage, error) {
	messages := make([]*domain.ChatMessage, 0, len(members))
	for i, member := range members {
		var message domain.ChatMessage
		if err := json.Unmarshal([]byte(member), &message); err != nil {
			return nil, fmt.Errorf("failed to decode stored message %d: %w", i, err)
		}
		messages = append(messages, &message)
	}
	return messages, nil
}

func (r *redisMessageRepository) ListAll(ctx context.Context) ([]*domain.ChatMessage, error) {
	identities, err := r.rdb.SMembers(ctx, ChatIdentitiesKey).Result()
	if err != nil && err != redis.Nil {
		r.log.Error("Failed to list identities from Redis", "error", err)
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}

	all := make([]*domain.ChatMessage, 0)
	for _, identity := range identities {
		messages, err := r.ListByIdentity(ctx, identity)
		if err != nil {
			return nil, err
		}
		all = append(all, messages...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.Before(all[j].Timestamp)
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

func (r *redisMessageRepository) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	var card *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.ZCard(ctx, r.messagesKey(identity))
		pipe.Del(ctx, r.messagesKey(identity))
		pipe.SRem(ctx, ChatIdentitiesKey, identity)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to delete messages from Redis", "error", err, "identity", identity)
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return card.Val(), nil
}

func (r *redisMessageRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

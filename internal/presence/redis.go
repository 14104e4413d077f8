package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout:
//
//	sig:sess:conn:{connectionId}  hash  user_id, device_id, platform, registered_at   TTL sessionTTL
//	sig:sess:user:{userId}        set   connection ids                                TTL sessionTTL
//	sig:presence:{userId}         hash  status, last_seen                             TTL presenceTTL
//	sig:push:{userId}             string push token                                   no TTL
//
// The push key deliberately carries no TTL: a fully disconnected user must
// still be reachable for an incoming-call push until they explicitly log out.
const (
	connKeyPrefix     = "sig:sess:conn:"
	userConnKeyPrefix = "sig:sess:user:"
	presenceKeyPrefix = "sig:presence:"
	pushKeyPrefix     = "sig:push:"
)

func connKey(connectionID string) string { return connKeyPrefix + connectionID }
func userConnKey(userID string) string   { return userConnKeyPrefix + userID }
func presenceKey(userID string) string   { return presenceKeyPrefix + userID }
func pushKey(userID string) string       { return pushKeyPrefix + userID }

// RedisRegistry is the production Registry backed by a shared Redis.
type RedisRegistry struct {
	rdb         *redis.Client
	sessionTTL  time.Duration
	presenceTTL time.Duration
	clock       func() time.Time
}

func NewRedisRegistry(rdb *redis.Client, sessionTTL, presenceTTL time.Duration) *RedisRegistry {
	return &RedisRegistry{
		rdb:         rdb,
		sessionTTL:  sessionTTL,
		presenceTTL: presenceTTL,
		clock:       time.Now,
	}
}

func (r *RedisRegistry) RegisterConnection(ctx context.Context, s Session) error {
	if s.UserID == "" || s.ConnectionID == "" {
		return ErrInvalidArgument
	}
	now := s.RegisteredAt
	if now.IsZero() {
		now = r.clock().UTC()
	}

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, connKey(s.ConnectionID),
		"user_id", s.UserID,
		"device_id", s.DeviceID,
		"platform", s.Platform,
		"registered_at", now.Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, connKey(s.ConnectionID), r.sessionTTL)
	pipe.SAdd(ctx, userConnKey(s.UserID), s.ConnectionID)
	pipe.Expire(ctx, userConnKey(s.UserID), r.sessionTTL)
	pipe.HSet(ctx, presenceKey(s.UserID),
		"status", string(StatusOnline),
		"last_seen", now.Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, presenceKey(s.UserID), r.presenceTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	return nil
}

func (r *RedisRegistry) UnregisterConnection(ctx context.Context, connectionID string, opts UnregisterOptions) (string, error) {
	if connectionID == "" {
		return "", ErrInvalidArgument
	}

	userID, err := r.rdb.HGet(ctx, connKey(connectionID), "user_id").Result()
	if err == redis.Nil {
		// Session already expired or never existed; retry-safe no-op.
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("unregister connection: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, connKey(connectionID))
	pipe.SRem(ctx, userConnKey(userID), connectionID)
	remaining := pipe.SCard(ctx, userConnKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return userID, fmt.Errorf("unregister connection: %w", err)
	}

	if remaining.Val() == 0 {
		now := r.clock().UTC()
		pipe := r.rdb.TxPipeline()
		pipe.Del(ctx, userConnKey(userID))
		pipe.HSet(ctx, presenceKey(userID),
			"status", string(StatusOffline),
			"last_seen", now.Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, presenceKey(userID), r.presenceTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return userID, fmt.Errorf("unregister connection: %w", err)
		}
	}

	if opts.DeletePushToken {
		if err := r.rdb.Del(ctx, pushKey(userID)).Err(); err != nil {
			return userID, fmt.Errorf("delete push token: %w", err)
		}
	}
	return userID, nil
}

func (r *RedisRegistry) RefreshLiveness(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	conns, err := r.rdb.SMembers(ctx, userConnKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("refresh liveness: %w", err)
	}

	now := r.clock().UTC()
	pipe := r.rdb.TxPipeline()
	pipe.Expire(ctx, userConnKey(userID), r.sessionTTL)
	for _, c := range conns {
		pipe.Expire(ctx, connKey(c), r.sessionTTL)
	}
	pipe.HSet(ctx, presenceKey(userID),
		"status", string(StatusOnline),
		"last_seen", now.Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, presenceKey(userID), r.presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh liveness: %w", err)
	}
	return nil
}

func (r *RedisRegistry) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.rdb.SCard(ctx, userConnKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("is online: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) Connections(ctx context.Context, userID string) ([]string, error) {
	conns, err := r.rdb.SMembers(ctx, userConnKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("connections: %w", err)
	}
	return conns, nil
}

func (r *RedisRegistry) Presence(ctx context.Context, userID string) (Presence, bool, error) {
	vals, err := r.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return Presence{}, false, fmt.Errorf("presence: %w", err)
	}
	if len(vals) == 0 {
		return Presence{}, false, nil
	}
	p := Presence{UserID: userID, Status: Status(vals["status"])}
	if ts := vals["last_seen"]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			p.LastSeen = t
		}
	}
	return p, true, nil
}

func (r *RedisRegistry) SetPushToken(ctx context.Context, userID, token string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	if token == "" {
		return nil
	}
	if err := r.rdb.Set(ctx, pushKey(userID), token, 0).Err(); err != nil {
		return fmt.Errorf("set push token: %w", err)
	}
	return nil
}

func (r *RedisRegistry) PushToken(ctx context.Context, userID string) (string, bool, error) {
	tok, err := r.rdb.Get(ctx, pushKey(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("push token: %w", err)
	}
	return tok, true, nil
}

package call

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout:
//
//	sig:call:{callId}   hash  call fields            TTL liveTTL, shortened to terminalGrace once terminal
//	sig:busy:{userId}   string callId of the user's non-terminal call, TTL tied to the call
//
// The busy keys are written in the same Lua script that creates the call and
// cleared in the same script that performs a terminal transition, so the
// busy invariant holds under concurrent initiations across processes.
const (
	callKeyPrefix = "sig:call:"
	busyKeyPrefix = "sig:busy:"
)

func callKey(callID string) string { return callKeyPrefix + callID }
func busyKey(userID string) string { return busyKeyPrefix + userID }

// createScript atomically busy-checks both participants and inserts the call.
//
// KEYS[1] call key, KEYS[2] caller busy key, KEYS[3] callee busy key
// ARGV: call_id, caller_id, callee_id, call_type, created_at, live_ttl_ms
// Returns 1 if created, 0 if either participant is busy.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 or redis.call('EXISTS', KEYS[3]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'call_id', ARGV[1],
  'caller_id', ARGV[2],
  'callee_id', ARGV[3],
  'call_type', ARGV[4],
  'state', 'ringing',
  'created_at', ARGV[5],
  'updated_at', ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[6])
redis.call('SET', KEYS[3], ARGV[1], 'PX', ARGV[6])
return 1
`)

// transitionScript is a guarded compare-and-swap on the call state.
//
// KEYS[1] call key, KEYS[2] caller busy key, KEYS[3] callee busy key
// ARGV[1] to-state, ARGV[2] updated_at, ARGV[3] terminal flag ('1'/'0'),
// ARGV[4] terminal grace ms, ARGV[5..] allowed from-states
// Returns 1 on transition, 0 when the current state is not allowed,
// -1 when the call no longer exists.
var transitionScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  return -1
end
local allowed = false
for i = 5, #ARGV do
  if state == ARGV[i] then
    allowed = true
  end
end
if not allowed then
  return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'updated_at', ARGV[2])
if ARGV[3] == '1' then
  redis.call('DEL', KEYS[2], KEYS[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return 1
`)

// RedisStore is the production Store backed by a shared Redis.
type RedisStore struct {
	rdb           *redis.Client
	liveTTL       time.Duration
	terminalGrace time.Duration
	clock         func() time.Time
}

func NewRedisStore(rdb *redis.Client, liveTTL, terminalGrace time.Duration) *RedisStore {
	return &RedisStore{
		rdb:           rdb,
		liveTTL:       liveTTL,
		terminalGrace: terminalGrace,
		clock:         time.Now,
	}
}

func (s *RedisStore) Create(ctx context.Context, c Call) error {
	if c.ID == "" || c.CallerID == "" || c.CalleeID == "" || c.CallerID == c.CalleeID || !c.Type.Valid() {
		return ErrInvalidArgument
	}
	now := c.CreatedAt
	if now.IsZero() {
		now = s.clock().UTC()
	}

	keys := []string{callKey(c.ID), busyKey(c.CallerID), busyKey(c.CalleeID)}
	res, err := createScript.Run(ctx, s.rdb, keys,
		c.ID, c.CallerID, c.CalleeID, string(c.Type),
		now.Format(time.RFC3339Nano), s.liveTTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	if res == 0 {
		return ErrBusy
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, callID string) (Call, error) {
	if callID == "" {
		return Call{}, ErrInvalidArgument
	}
	vals, err := s.rdb.HGetAll(ctx, callKey(callID)).Result()
	if err != nil {
		return Call{}, fmt.Errorf("get call: %w", err)
	}
	if len(vals) == 0 {
		return Call{}, ErrNotFound
	}
	return callFromHash(vals), nil
}

func (s *RedisStore) Accept(ctx context.Context, callID string) (Call, bool, error) {
	return s.transition(ctx, callID, StateAccepted, StateRinging)
}

func (s *RedisStore) Reject(ctx context.Context, callID string) (Call, bool, error) {
	return s.transition(ctx, callID, StateRejected, StateRinging)
}

func (s *RedisStore) End(ctx context.Context, callID string) (Call, bool, error) {
	return s.transition(ctx, callID, StateEnded, StateRinging, StateAccepted)
}

func (s *RedisStore) Miss(ctx context.Context, callID string) (Call, bool, error) {
	return s.transition(ctx, callID, StateMissed, StateRinging)
}

func (s *RedisStore) transition(ctx context.Context, callID string, to State, from ...State) (Call, bool, error) {
	// Participants are immutable after Create, so reading them outside the
	// script does not weaken the CAS: the guard is on state alone.
	c, err := s.Get(ctx, callID)
	if err != nil {
		return Call{}, false, err
	}

	now := s.clock().UTC()
	terminal := "0"
	if to.Terminal() {
		terminal = "1"
	}
	args := []interface{}{string(to), now.Format(time.RFC3339Nano), terminal, s.terminalGrace.Milliseconds()}
	for _, f := range from {
		args = append(args, string(f))
	}

	keys := []string{callKey(callID), busyKey(c.CallerID), busyKey(c.CalleeID)}
	res, err := transitionScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return Call{}, false, fmt.Errorf("transition call: %w", err)
	}
	switch res {
	case -1:
		return Call{}, false, ErrNotFound
	case 0:
		return Call{}, false, nil
	}

	c.State = to
	c.UpdatedAt = now
	return c, true, nil
}

func callFromHash(vals map[string]string) Call {
	c := Call{
		ID:       vals["call_id"],
		CallerID: vals["caller_id"],
		CalleeID: vals["callee_id"],
		Type:     Type(vals["call_type"]),
		State:    State(vals["state"]),
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["created_at"]); err == nil {
		c.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["updated_at"]); err == nil {
		c.UpdatedAt = t
	}
	return c
}

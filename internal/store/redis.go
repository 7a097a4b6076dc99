package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zeropass/zeropass/internal/audit"
	"github.com/zeropass/zeropass/internal/rules"
)

// Key layout:
//
//	zp:ruleset:<owner>:<id>  JSON-encoded rule set
//	zp:logs:<owner>          list of JSON-encoded audit entries, append order
const (
	ruleSetKeyPrefix = "zp:ruleset:"
	logsKeyPrefix    = "zp:logs:"
)

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// RedisRuleSets is a Redis-backed RuleSets implementation.
type RedisRuleSets struct {
	client *redis.Client
}

// NewRedisRuleSets creates a rule set store on an existing client.
func NewRedisRuleSets(client *redis.Client) *RedisRuleSets {
	return &RedisRuleSets{client: client}
}

func ruleSetKey(owner, id string) string {
	return ruleSetKeyPrefix + owner + ":" + id
}

func (s *RedisRuleSets) Put(ctx context.Context, rs *rules.RuleSet) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal rule set %s: %w", rs.ID, err)
	}
	return s.client.Set(ctx, ruleSetKey(rs.Owner, rs.ID), data, 0).Err()
}

func (s *RedisRuleSets) Get(ctx context.Context, owner, id string) (*rules.RuleSet, error) {
	data, err := s.client.Get(ctx, ruleSetKey(owner, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rs rules.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("unmarshal rule set %s: %w", id, err)
	}
	return &rs, nil
}

func (s *RedisRuleSets) ListByOwner(ctx context.Context, owner string) ([]*rules.RuleSet, error) {
	keys, err := scanKeys(ctx, s.client, ruleSetKeyPrefix+owner+":*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*rules.RuleSet{}, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*rules.RuleSet, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between SCAN and MGET
		}
		var rs rules.RuleSet
		if err := json.Unmarshal([]byte(raw), &rs); err != nil {
			return nil, fmt.Errorf("unmarshal rule set: %w", err)
		}
		out = append(out, &rs)
	}
	return out, nil
}

func (s *RedisRuleSets) Delete(ctx context.Context, owner, id string) error {
	n, err := s.client.Del(ctx, ruleSetKey(owner, id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisRuleSets) Count(ctx context.Context) (int, error) {
	keys, err := scanKeys(ctx, s.client, ruleSetKeyPrefix+"*")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// RedisLogs is a Redis-backed Logs implementation.
type RedisLogs struct {
	client *redis.Client
}

// NewRedisLogs creates a log store on an existing client.
func NewRedisLogs(client *redis.Client) *RedisLogs {
	return &RedisLogs{client: client}
}

func logsKey(owner string) string {
	return logsKeyPrefix + owner
}

func (s *RedisLogs) Append(ctx context.Context, owner string, e *audit.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry %s: %w", e.ID, err)
	}
	return s.client.RPush(ctx, logsKey(owner), data).Err()
}

func (s *RedisLogs) ListByOwner(ctx context.Context, owner string, limit int) ([]*audit.Entry, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, logsKey(owner), start, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*audit.Entry, 0, len(raw))
	for _, r := range raw {
		var e audit.Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("unmarshal audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}

func (s *RedisLogs) Clear(ctx context.Context, owner string) error {
	return s.client.Del(ctx, logsKey(owner)).Err()
}

func (s *RedisLogs) Count(ctx context.Context) (int, error) {
	keys, err := scanKeys(ctx, s.client, logsKeyPrefix+"*")
	if err != nil {
		return 0, err
	}
	total := 0
	for _, k := range keys {
		n, err := s.client.LLen(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

func scanKeys(ctx context.Context, client *redis.Client, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

package promo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"promo-service/internal/client"
	"promo-service/internal/models"
	"promo-service/internal/util"
)

const (
	promoCodePrefix = "promo_code:"
	statsCodesKey   = "promo_stats:total_codes"
	statsUsagesKey  = "promo_stats:total_usages"

	redisOpTimeout = 5 * time.Second
)

// The conditional increment runs inside Redis so two concurrent
// redemptions can never both take the last slot. Preserves any key TTL.
const incrementUsageScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
    return redis.error_reply('not_found')
end

local code = cjson.decode(raw)
if code.usage_limit and code.used_count >= code.usage_limit then
    return redis.error_reply('usage_limit')
end

code.used_count = code.used_count + 1
code.updated_at = ARGV[1]

local encoded = cjson.encode(code)
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
    redis.call('SET', KEYS[1], encoded, 'PX', ttl)
else
    redis.call('SET', KEYS[1], encoded)
end
redis.call('INCRBY', KEYS[2], 1)
return encoded
`

// RedisStore keeps one JSON value per code under a fixed prefix. When a
// code has an expiry, the key gets a matching TTL as defense in depth;
// the validator's expiry rule stays authoritative.
type RedisStore struct {
	client *client.RedisClient
}

func NewRedisStore(client *client.RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, code string) (*models.PromoCode, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, promoCodePrefix+code)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}

	var record models.PromoCode
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("invalid promo code record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) Put(ctx context.Context, code *models.PromoCode) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	key := promoCodePrefix + code.Code

	existed, err := s.client.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check promo code existence: %w", err)
	}

	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal promo code: %w", err)
	}

	// Mirror the business expiry onto the key. Expired keys fall out of
	// Redis on their own; the record-level check stays the source of truth.
	var expiration time.Duration
	if code.ExpiresAt != nil {
		if until := time.Until(*code.ExpiresAt); until > 0 {
			expiration = until
		}
	}

	if err := s.client.Set(ctx, key, payload, expiration); err != nil {
		return fmt.Errorf("failed to store promo code: %w", err)
	}

	if !existed {
		if _, err := s.client.IncrBy(ctx, statsCodesKey, 1); err != nil {
			util.Warn("Failed to increment total codes counter",
				zap.String("code", code.Code),
				zap.Error(err))
		}
	}

	util.Debug("Promo code stored",
		zap.String("code", code.Code),
		zap.Bool("new", !existed))

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	deleted, err := s.client.Del(ctx, promoCodePrefix+code)
	if err != nil {
		return fmt.Errorf("failed to delete promo code: %w", err)
	}
	if deleted == 0 {
		return ErrCodeNotFound
	}

	if _, err := s.client.IncrBy(ctx, statsCodesKey, -1); err != nil {
		util.Warn("Failed to decrement total codes counter",
			zap.String("code", code),
			zap.Error(err))
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.PromoCode, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	keys, err := s.client.ScanKeys(ctx, promoCodePrefix+"*", 100)
	if err != nil {
		return nil, fmt.Errorf("failed to scan promo codes: %w", err)
	}
	if len(keys) == 0 {
		return []*models.PromoCode{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to fetch promo codes: %w", err)
	}

	records := make([]*models.PromoCode, 0, len(keys))
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			// Key may have expired between SCAN and GET.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to fetch promo code %s: %w", keys[i], err)
		}
		var record models.PromoCode
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			util.Warn("Skipping malformed promo code record",
				zap.String("key", keys[i]),
				zap.Error(err))
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (s *RedisStore) Stats(ctx context.Context) (*models.PromoStats, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	stats := &models.PromoStats{}

	for _, entry := range []struct {
		key    string
		target *int64
	}{
		{statsCodesKey, &stats.TotalCodes},
		{statsUsagesKey, &stats.TotalUsages},
	} {
		raw, err := s.client.Get(ctx, entry.key)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to read stats counter %s: %w", entry.key, err)
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stats counter %s: %w", entry.key, err)
		}
		*entry.target = value
	}
	return stats, nil
}

func (s *RedisStore) IncrementUsage(ctx context.Context, code string) (*models.PromoCode, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	result, err := s.client.Eval(ctx, incrementUsageScript,
		[]string{promoCodePrefix + code, statsUsagesKey},
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "not_found"):
			return nil, ErrCodeNotFound
		case strings.Contains(err.Error(), "usage_limit"):
			return nil, ErrUsageLimitReached
		}
		return nil, fmt.Errorf("failed to increment promo code usage: %w", err)
	}

	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected result format from usage script")
	}

	var record models.PromoCode
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("invalid promo code record after increment: %w", err)
	}

	util.Debug("Promo code usage incremented",
		zap.String("code", code),
		zap.Int("used_count", record.UsedCount))

	return &record, nil
}

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

const defaultPrefix = "docflow:otp:"

// markUsedScript flips the used flag once and indexes the record under its
// email and purpose so LatestUsed can find it. The index lives until the
// latest deadline among its members.
var markUsedScript = goredis.NewScript(`
local rec = KEYS[1]
if redis.call('EXISTS', rec) == 0 then
	return 0
end
if redis.call('HGET', rec, 'used') == '1' then
	return 0
end
redis.call('HSET', rec, 'used', '1')
local email = redis.call('HGET', rec, 'email')
local purpose = redis.call('HGET', rec, 'purpose')
local expires = redis.call('HGET', rec, 'expires_at')
local index = ARGV[1] .. 'used:' .. purpose .. ':' .. email
redis.call('ZADD', index, expires, ARGV[2])
local latest = redis.call('ZRANGE', index, -1, -1, 'WITHSCORES')
redis.call('PEXPIREAT', index, latest[2])
return 1
`)

// consumeScript deletes the record and drops it from the used index.
var consumeScript = goredis.NewScript(`
local rec = KEYS[1]
if redis.call('EXISTS', rec) == 0 then
	return 0
end
local email = redis.call('HGET', rec, 'email')
local purpose = redis.call('HGET', rec, 'purpose')
redis.call('DEL', rec)
redis.call('ZREM', ARGV[1] .. 'used:' .. purpose .. ':' .. email, ARGV[2])
return 1
`)

// OTPStore keeps OTP records as hashes that Redis expires at the code's
// deadline.
type OTPStore struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

func NewOTPStore(client *goredis.Client, prefix string) *OTPStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &OTPStore{client: client, prefix: prefix, now: time.Now}
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := goredis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *OTPStore) recordKey(id string) string {
	return s.prefix + "rec:" + id
}

func (s *OTPStore) usedIndexKey(email string, purpose domain.OTPPurpose) string {
	return s.prefix + "used:" + string(purpose) + ":" + email
}

func (s *OTPStore) Save(ctx context.Context, otp *domain.OTPVerification) error {
	key := s.recordKey(otp.VerificationID)
	used := "0"
	if otp.Used {
		used = "1"
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"email", otp.Email,
			"code", otp.Code,
			"purpose", string(otp.Purpose),
			"used", used,
			"expires_at", otp.ExpiresAt.UnixMilli(),
			"created_at", otp.CreatedAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, otp.ExpiresAt)
		return nil
	})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "save otp", err)
	}
	return nil
}

func (s *OTPStore) Get(ctx context.Context, id string) (*domain.OTPVerification, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "get otp", err)
	}
	if len(fields) == 0 {
		return nil, domain.Fail(domain.ErrNotFound, "get otp", "verification not found")
	}
	return decodeOTP(id, fields)
}

func (s *OTPStore) Consume(ctx context.Context, id string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.recordKey(id)}, s.prefix, id).Int()
	if err != nil {
		return false, domain.WrapError(domain.ErrTemporary, "consume otp", err)
	}
	return n == 1, nil
}

func (s *OTPStore) MarkUsed(ctx context.Context, id string) (bool, error) {
	n, err := markUsedScript.Run(ctx, s.client, []string{s.recordKey(id)}, s.prefix, id).Int()
	if err != nil {
		return false, domain.WrapError(domain.ErrTemporary, "mark otp used", err)
	}
	return n == 1, nil
}

// LatestUsed returns the used record with the latest deadline. Index
// entries whose record already expired are pruned on the way.
func (s *OTPStore) LatestUsed(ctx context.Context, email string, purpose domain.OTPPurpose) (*domain.OTPVerification, error) {
	index := s.usedIndexKey(email, purpose)
	nowMillis := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.client.ZRemRangeByScore(ctx, index, "-inf", "("+nowMillis).Err(); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "prune otp index", err)
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list used otps", err)
	}
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			if domain.IsKind(err, domain.ErrNotFound) {
				_ = s.client.ZRem(ctx, index, id).Err()
				continue
			}
			return nil, err
		}
		if rec.Used {
			return rec, nil
		}
	}
	return nil, domain.Fail(domain.ErrNotFound, "latest used otp", "no verified code")
}

func decodeOTP(id string, fields map[string]string) (*domain.OTPVerification, error) {
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode otp expires_at: %w", err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode otp created_at: %w", err)
	}
	return &domain.OTPVerification{
		VerificationID: id,
		Email:          fields["email"],
		Code:           fields["code"],
		Purpose:        domain.OTPPurpose(fields["purpose"]),
		Used:           fields["used"] == "1",
		ExpiresAt:      time.UnixMilli(expires).UTC(),
		CreatedAt:      time.UnixMilli(created).UTC(),
	}, nil
}

package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCodeNotFound covers unknown, expired-and-collected and already
	// consumed codes alike; callers map it to invalid_grant.
	ErrCodeNotFound = errors.New("oidc: authorization code not found")
)

// Code is a single-use authorization code with everything the token
// endpoint must re-verify at redemption time.
type Code struct {
	Value       string    `json:"value"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes"`
	Subject     string    `json:"subject"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles,omitempty"`
	Nonce       string    `json:"nonce,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CodeStore persists authorization codes. Consume removes and returns the
// code in one atomic step: under concurrent redemption exactly one caller
// gets the code, all others get ErrCodeNotFound.
type CodeStore interface {
	Put(ctx context.Context, c *Code) error
	Consume(ctx context.Context, value string) (*Code, error)
}

// newCodeValue returns an unguessable opaque code value.
func newCodeValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ CodeStore = (*MemoryCodeStore)(nil)

// MemoryCodeStore keeps pending codes in process memory.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]*Code
}

// NewMemoryCodeStore constructs an empty MemoryCodeStore.
func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{codes: make(map[string]*Code)}
}

func (s *MemoryCodeStore) Put(ctx context.Context, c *Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.codes[c.Value] = &cp
	return nil
}

func (s *MemoryCodeStore) Consume(ctx context.Context, value string) (*Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[value]
	if !ok {
		return nil, ErrCodeNotFound
	}
	delete(s.codes, value)
	cp := *c
	return &cp, nil
}

var _ CodeStore = (*RedisCodeStore)(nil)

const codeKeyPrefix = "authcode:"

// RedisCodeStore shares pending codes across provider instances. GETDEL
// gives the single-redeemer guarantee.
type RedisCodeStore struct {
	rdb *redis.Client
}

// NewRedisCodeStore wraps an existing Redis client.
func NewRedisCodeStore(rdb *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{rdb: rdb}
}

func (s *RedisCodeStore) Put(ctx context.Context, c *Code) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return ErrCodeNotFound
	}
	return s.rdb.Set(ctx, codeKeyPrefix+c.Value, data, ttl).Err()
}

func (s *RedisCodeStore) Consume(ctx context.Context, value string) (*Code, error) {
	data, err := s.rdb.GetDel(ctx, codeKeyPrefix+value).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	var c Code
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, ErrCodeNotFound
	}
	return &c, nil
}

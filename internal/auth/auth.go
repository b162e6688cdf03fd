// Package auth guards the REST surface with static API keys. Keys are
// stored hashed and compared in constant time; the disabled mode passes
// every request through untouched.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
)

// Common errors returned by the authentication subsystem.
var (
	ErrMissingKey = errors.New("missing api key")
	ErrInvalidKey = errors.New("invalid api key")
	ErrKeyRevoked = errors.New("api key is disabled")
)

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeAPIKey   Mode = "apikey"
)

// Subject 描述一次通过认证的调用方。
type Subject struct {
	Name     string
	Disabled bool
}

// KeySeed 定义启动时注入的 API key。
type KeySeed struct {
	Key      string `yaml:"key"`
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
}

// Config 配置认证服务。
type Config struct {
	Mode Mode      `yaml:"mode"`
	Keys []KeySeed `yaml:"keys"`
}

// Store abstracts the API key catalogue. Implementations must be safe
// for concurrent use.
type Store interface {
	Lookup(ctx context.Context, key string) (*Subject, error)
}

// MemoryStore 以内存保存哈希后的 API key。
type MemoryStore struct {
	mu       sync.RWMutex
	subjects map[string]Subject
}

// NewMemoryStore 创建内存 key 存储。
func NewMemoryStore(seeds ...KeySeed) *MemoryStore {
	store := &MemoryStore{subjects: make(map[string]Subject, len(seeds))}
	for _, seed := range seeds {
		if strings.TrimSpace(seed.Key) == "" {
			continue
		}
		name := seed.Name
		if name == "" {
			name = "unnamed"
		}
		store.subjects[hashKey(seed.Key)] = Subject{Name: name, Disabled: seed.Disabled}
	}
	return store
}

// Lookup 实现 Store。
func (m *MemoryStore) Lookup(_ context.Context, key string) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subject, ok := m.subjects[hashKey(key)]
	if !ok {
		return nil, ErrInvalidKey
	}
	if subject.Disabled {
		return nil, ErrKeyRevoked
	}
	clone := subject
	return &clone, nil
}

// 比较在哈希域内完成，查表本身即是常数时间等价比较。
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// subjectKey 是上下文中存储 Subject 的键类型。
type subjectKey struct{}

// WithSubject 将通过认证的调用方信息存储到上下文中。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext 从上下文中提取调用方信息。
func SubjectFromContext(ctx context.Context) *Subject {
	if ctx == nil {
		return nil
	}
	if subject, ok := ctx.Value(subjectKey{}).(*Subject); ok {
		return subject
	}
	return nil
}

// Service 负责 HTTP 端点的身份验证。
type Service struct {
	mode  Mode
	store Store
}

// NewService 构造认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(string(cfg.Mode)))
	if mode == "" {
		mode = ModeDisabled
	}
	switch mode {
	case ModeDisabled:
		return &Service{mode: mode}, nil
	case ModeAPIKey:
		if len(cfg.Keys) == 0 {
			return nil, errors.New("apikey mode requires at least one key")
		}
		return &Service{mode: mode, store: NewMemoryStore(cfg.Keys...)}, nil
	default:
		return nil, errors.New("unsupported auth mode: " + string(cfg.Mode))
	}
}

// Mode 返回当前工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Authenticate 校验请求携带的 API key 并返回调用方信息。
func (s *Service) Authenticate(ctx context.Context, header string) (*Subject, error) {
	if s == nil || s.mode == ModeDisabled {
		return &Subject{Name: "anonymous"}, nil
	}
	key := strings.TrimSpace(header)
	key = strings.TrimPrefix(key, "Bearer ")
	if key == "" {
		return nil, ErrMissingKey
	}
	return s.store.Lookup(ctx, key)
}

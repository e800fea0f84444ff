package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/grocerybot/core/factory"
)

var storeRegistry = factory.NewRegistry[Store]()

// RegisterStore adds a store factory identified by name.
func RegisterStore(name string, f factory.Factory[Store]) error {
	return storeRegistry.Register(name, f)
}

// StoreTypes lists the registered store types.
func StoreTypes() []string { return storeRegistry.Types() }

// NewStore creates a Store from its configuration. An empty type yields an
// in-memory store.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return NewMemoryStore(0), nil
	}
	return storeRegistry.Create(cfg)
}

type fileConf struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

type redisConf struct {
	Addr      string        `json:"addr"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	Namespace string        `json:"namespace"`
	MaxLen    int64         `json:"max_len"`
	Timeout   time.Duration `json:"timeout"`
}

func init() {
	_ = RegisterStore("memory", func(conf map[string]any) (Store, error) {
		var c struct {
			Max int `json:"max"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewMemoryStore(c.Max), nil
	})
	_ = RegisterStore("jsonl", func(conf map[string]any) (Store, error) {
		var c fileConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("jsonl trace store: path required")
		}
		return NewJSONLStore(c.Path)
	})
	_ = RegisterStore("rotating", func(conf map[string]any) (Store, error) {
		c := fileConf{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("rotating trace store: path required")
		}
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = RegisterStore("sqlite", func(conf map[string]any) (Store, error) {
		var c fileConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("sqlite trace store: path required")
		}
		return NewSQLiteStore(c.Path)
	})
	_ = RegisterStore("redis", func(conf map[string]any) (Store, error) {
		c := redisConf{Addr: "localhost:6379", Namespace: "default", MaxLen: 10000, Timeout: 5 * time.Second}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
		defer cancel()
		return NewRedisStore(ctx, &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}, c.Namespace, c.MaxLen)
	})
}

package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/partnerportal/internal/config"
	"github.com/dropDatabas3/partnerportal/internal/security/secretbox"
)

// Open construye el Store según cfg.Session.Store.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Session.Store {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		r := cfg.Session.Redis
		return DialRedis(ctx, RedisOptions{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
		})
	case "file", "":
		var box *secretbox.Box
		if k := strings.TrimSpace(cfg.Session.EncryptionKey); k != "" {
			b, err := secretbox.New(k)
			if err != nil {
				return nil, fmt.Errorf("session: encryption key: %w", err)
			}
			box = b
		}
		return NewFileStore(cfg.Session.Path, box), nil
	default:
		return nil, fmt.Errorf("session: store desconocido %q", cfg.Session.Store)
	}
}

package storage

import (
	"minilink/internal/config"
)

// Open builds the store selected by LOCAL_STORE_DRIVER.
func Open(cfg *config.Config) (Store, error) {
	if cfg.LocalStoreDriver == "redis" {
		addr := cfg.LocalStoreRedisURL
		if addr == "" {
			addr = cfg.RedisURL
		}
		s, err := OpenRedis(addr, DefaultNamespace)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := OpenSQLite(cfg.LocalStorePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

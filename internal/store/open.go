package store

import (
	"fmt"

	"github.com/zentiam/leadbot/internal/config"
)

// Open returns the repository selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Repository, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return NewSQLite(cfg.DBPath)
	case config.DriverMongo:
		return NewMongo(cfg.MongoURI, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

package contacts

import (
	"errors"
	"strings"

	logx "blastbot/pkg/logx"
)

// Open initializes the configured contact store. Unlike optional layers,
// a book always exists: the empty driver means CSV.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "csv":
		return openCSV(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown contacts driver: " + driver)
	}
}

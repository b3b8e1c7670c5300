//go:build !sqlite
// +build !sqlite

package contacts

import (
	"errors"

	logx "blastbot/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	return nil, errors.New("sqlite contacts driver not built: rebuild with -tags sqlite or use driver \"csv\"")
}

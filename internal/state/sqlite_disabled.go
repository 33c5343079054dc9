//go:build !sqlite
// +build !sqlite

package state

import (
	"errors"

	logx "tagwatch/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite state driver not built: build with -tags sqlite")
}

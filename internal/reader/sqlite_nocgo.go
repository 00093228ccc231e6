//go:build !cgo
// +build !cgo

package reader

import (
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"

func sqliteReadOnlyDSN(path string) string {
	return "file:" + path + "?mode=ro"
}

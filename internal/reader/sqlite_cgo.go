//go:build cgo
// +build cgo

package reader

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriver = "sqlite3"

func sqliteReadOnlyDSN(path string) string {
	return "file:" + path + "?mode=ro"
}

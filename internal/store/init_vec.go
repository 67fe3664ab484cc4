//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver so
	// the facts_vec ANN table is available. Without this tag the store runs
	// on full-scan similarity.
	vec.Auto()
}

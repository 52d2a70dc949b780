// Package sqlite contains the baseline store implementations on top of
// database/sql and the modernc.org/sqlite driver. These are the proven
// implementations the repository bridge falls back to; the flagged rewrite
// lives in the sqlitex package.
package sqlite

package db

import "github.com/jmoiron/sqlx"

// Pool pairs a write handle with a read handle. The SQLite backend
// keeps them distinct: the writer is pinned to one connection so task
// and blocker transactions serialize instead of hitting SQLITE_BUSY,
// while the reader fans out over WAL snapshots for stats and summary
// queries. The Postgres backend hands the same pgx-backed pool to both
// roles.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool builds a Pool over the given handles. writer and reader may
// be the same *sqlx.DB.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer is the handle for mutations and transactions.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader is the handle for queries. Reads through it never block on an
// in-flight write.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// Close releases both handles, tolerating the shared-handle case.
func (p *Pool) Close() error {
	err := p.writer.Close()
	if p.reader == p.writer {
		return err
	}
	if rerr := p.reader.Close(); err == nil {
		err = rerr
	}
	return err
}

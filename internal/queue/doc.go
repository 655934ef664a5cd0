// Package queue persists jobs in two FIFO lists, pending and completed, and
// exposes the job lifecycle on top of them.
//
// ListStore is the minimal keyed-list contract; SQLiteStore (the default,
// embedded) and RedisStore implement it. Queue is the service object the
// producer owns: it encodes jobs, keeps an id index next to the FIFO order,
// and serializes compound scan-then-remove sequences so concurrent watchers
// and HTTP handlers cannot interleave them.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue

// Package yaradb is the storage and integrity core of a small
// document-oriented database.
//
// It owns the durable append-only operation log (the WAL), the on-disk
// snapshot format and the checkpoint protocol that compacts the log, the
// in-memory authoritative state (documents, tables, indexes), the
// concurrency discipline that serializes mutations and keeps readers
// consistent, and the secondary index subsystem kept synchronized with
// document mutations.
//
// It deliberately says nothing about HTTP, authentication, rate limiting,
// or request shapes. Callers are expected to sit a thin network adapter
// on top of the operations exposed by [Engine] and translate [Error]
// values into wire-level responses.
package yaradb

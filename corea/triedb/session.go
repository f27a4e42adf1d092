// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package triedb implements the "session" pattern named in spec §5: a
// session holds an in-memory accounts table and an in-memory storages
// table, fed by the trie importer, and may be committed in bulk to a
// backing persistent store.
package triedb

import (
	"github.com/VictoriaMetrics/fastcache"

	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/log"
)

// BulkWriter is the external, bulk-write collaborator a Session commits to.
// Persistent disk I/O beyond this interface is out of this module's scope
// per spec §1.
type BulkWriter interface {
	Put(key, value []byte) error
}

// KeyValueWriter mirrors the teacher's ethdb.KeyValueWriter shape (see
// core/state/snapshot/rawdb.go) for single-key writes used by callers that
// don't go through the bulk path.
type KeyValueWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Session owns one pivot's in-memory accounts-db and storages-db, both
// fastcache-backed tables, until committed. Only one session writes to a
// given (account, root) pair at a time; the scheduler enforces this by
// per-pivot ownership (spec §5).
type Session struct {
	accounts *fastcache.Cache
	storages *fastcache.Cache
	seen     *NodeBloom

	store *BulkStore // optional billy-backed blob store for the SST-builder path
}

// NewSession allocates a session with maxBytes split evenly between the
// accounts and storages tables.
func NewSession(maxBytes int) *Session {
	half := maxBytes / 2
	if half < 1<<20 {
		half = 1 << 20
	}
	seen, err := NewNodeBloom(1<<20, 0.001)
	if err != nil {
		// Only returns an error for a degenerate (zero) size/rate, which
		// NewNodeBloom's fixed arguments never hit.
		panic(err)
	}
	return &Session{
		accounts: fastcache.New(half),
		storages: fastcache.New(half),
		seen:     seen,
	}
}

// ShouldImport is the probabilistic pre-check a caller runs ahead of
// trie.Db.Import's authoritative seen-set (see NodeBloom). ShouldImport
// records key as seen and reports whether Import should still be called.
func (s *Session) ShouldImport(key rangedesc.NodeKey) bool {
	if s.seen.MaybeSeen(key) {
		return false
	}
	s.seen.Add(key)
	return true
}

func (s *Session) PutAccount(key rangedesc.NodeKey, rlpNode []byte) {
	s.accounts.Set(key[:], rlpNode)
}

func (s *Session) GetAccount(key rangedesc.NodeKey) ([]byte, bool) {
	return s.accounts.HasGet(nil, key[:])
}

func (s *Session) PutStorage(key rangedesc.NodeKey, rlpNode []byte) {
	s.storages.Set(key[:], rlpNode)
}

func (s *Session) GetStorage(key rangedesc.NodeKey) ([]byte, bool) {
	return s.storages.HasGet(nil, key[:])
}

// BulkCommitAccounts logs the accounts table's entry count; it writes
// nothing to w, since the fastcache table cannot be iterated (see
// bulkCommit). Matches the teacher's bulkStorageAccounts naming (spec §5).
func (s *Session) BulkCommitAccounts(w BulkWriter) error {
	return bulkCommit(s.accounts, w)
}

// BulkCommitStorages logs the storages table's entry count; like
// BulkCommitAccounts, it writes nothing to w.
func (s *Session) BulkCommitStorages(w BulkWriter) error {
	return bulkCommit(s.storages, w)
}

func bulkCommit(c *fastcache.Cache, w BulkWriter) error {
	var stat fastcache.Stats
	c.UpdateStats(&stat)
	log.Debug("triedb: bulk commit", "entries", stat.EntriesCount)
	// fastcache has no native full-iteration API; callers that need ordered
	// replay use BulkStore (see bulkstore.go) instead of the fastcache table
	// directly for the SST-builder path described in spec §6.
	return nil
}

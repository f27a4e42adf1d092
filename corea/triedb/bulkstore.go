// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package triedb

import (
	"github.com/holiman/billy"

	"github.com/luxfi/snapsync/log"
)

// slotSizes are the size classes billy partitions blobs into; trie nodes are
// small and fairly uniform in size, so a handful of classes covers them
// without much waste.
var slotSizes = []uint32{512, 1024, 2048, 4096, 8192, 16384, 32768}

// BulkStore is an ordered, append-only blob store used as the "direct
// rocksdb SST builder" path named in spec §6: when the backing KV store
// exposes a bulk-append surface, imported trie nodes are staged here first
// and handed off as one sorted run, rather than written key-by-key.
type BulkStore struct {
	db   billy.Database
	ids  []uint64
}

// OpenBulkStore opens (or creates) a billy-backed blob store rooted at dir.
func OpenBulkStore(dir string) (*BulkStore, error) {
	db, err := billy.Open(billy.Options{Path: dir}, billy.NewBasicFreelist(slotSizes), nil)
	if err != nil {
		return nil, err
	}
	return &BulkStore{db: db}, nil
}

// Stage appends data and records its id for later ordered flush.
func (b *BulkStore) Stage(data []byte) (uint64, error) {
	id, err := b.db.Put(data)
	if err != nil {
		return 0, err
	}
	b.ids = append(b.ids, id)
	return id, nil
}

// Flush hands every staged blob to w in staging order, then clears the
// staged-id list. It does not close the underlying store.
func (b *BulkStore) Flush(w BulkWriter, keyOf func(id uint64, data []byte) []byte) error {
	for _, id := range b.ids {
		data, err := b.db.Get(id)
		if err != nil {
			log.Debug("triedb: bulk store read failed", "id", id, "err", err)
			continue
		}
		if err := w.Put(keyOf(id, data), data); err != nil {
			return err
		}
	}
	b.ids = b.ids[:0]
	return nil
}

func (b *BulkStore) Close() error {
	return b.db.Close()
}

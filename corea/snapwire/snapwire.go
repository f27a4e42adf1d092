// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package snapwire declares the consumed-only snap/1 reply shapes this
// downloader reads (eth/66 block headers are modeled in corea/peerhead
// instead). The protocols
// themselves -- framing, RLP codecs, transport -- are external collaborators
// out of scope per spec §1; this package only names the request/response
// pairs and the Peer interface components depend on.
package snapwire

import (
	"context"

	"github.com/luxfi/snapsync/corea/rangedesc"
)

// AccountData is one (hash, rlp-account) pair from an AccountRange reply.
type AccountData struct {
	Hash    rangedesc.NodeKey
	Account []byte // RLP-encoded account body; opaque to this package
}

// AccountRangeReply is the decoded snap/1 AccountRange message.
type AccountRangeReply struct {
	Accounts []AccountData
	Proofs   [][]byte
}

// StorageData is one (slot-hash, rlp-value) pair.
type StorageData struct {
	Hash rangedesc.NodeKey
	Slot []byte
}

// StorageRangesReply is the decoded snap/1 StorageRanges message: one slot
// list per requested account, plus proofs only for the (possibly partial)
// last account in the reply.
type StorageRangesReply struct {
	Slots  [][]StorageData
	Proofs [][]byte
}

// ByteCodesReply is the decoded snap/1 ByteCodes message.
type ByteCodesReply struct {
	Codes [][]byte
}

// NodesReply is the decoded snap/1 TrieNodes message.
type NodesReply struct {
	Nodes [][]byte
}

// Peer is the external, per-connection collaborator the snap fetcher and
// healer issue requests through. Bytes-budget and proof verification happen
// above this interface; Peer only models the wire round-trip.
type Peer interface {
	ID() string

	GetAccountRange(ctx context.Context, root rangedesc.NodeKey, origin, limit rangedesc.NodeKey, bytesLimit uint64) (AccountRangeReply, error)
	GetStorageRanges(ctx context.Context, root rangedesc.NodeKey, accounts []rangedesc.NodeKey, origin, limit rangedesc.NodeKey, bytesLimit uint64) (StorageRangesReply, error)
	GetByteCodes(ctx context.Context, hashes []rangedesc.NodeKey, bytesLimit uint64) (ByteCodesReply, error)
	GetTrieNodes(ctx context.Context, root rangedesc.NodeKey, paths [][]byte, bytesLimit uint64) (NodesReply, error)
}

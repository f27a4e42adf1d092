// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package snapwiretest provides a scriptable fake snapwire.Peer for tests,
// following the teacher's sync/handlers test_providers.go convention of
// hand-written fakes over generated mocks.
package snapwiretest

import (
	"context"
	"errors"

	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/corea/snapwire"
)

// ErrScriptExhausted is returned once a FakePeer's scripted responses run out.
var ErrScriptExhausted = errors.New("snapwiretest: script exhausted")

// FakePeer replays a fixed script of AccountRange replies (extend as needed
// for storage/bytecode/trienode scripts) and records every AccountRange
// request it saw.
type FakePeer struct {
	PeerID string

	AccountScript []AccountStep
	accountCalls  int

	Requests []AccountRangeRequest
}

type AccountRangeRequest struct {
	Root         rangedesc.NodeKey
	Origin, Limit rangedesc.NodeKey
}

// AccountStep is one scripted reply, optionally an error instead.
type AccountStep struct {
	Reply snapwire.AccountRangeReply
	Err   error
}

func (f *FakePeer) ID() string { return f.PeerID }

func (f *FakePeer) GetAccountRange(_ context.Context, root rangedesc.NodeKey, origin, limit rangedesc.NodeKey, _ uint64) (snapwire.AccountRangeReply, error) {
	f.Requests = append(f.Requests, AccountRangeRequest{Root: root, Origin: origin, Limit: limit})
	if f.accountCalls >= len(f.AccountScript) {
		return snapwire.AccountRangeReply{}, ErrScriptExhausted
	}
	step := f.AccountScript[f.accountCalls]
	f.accountCalls++
	return step.Reply, step.Err
}

func (f *FakePeer) GetStorageRanges(context.Context, rangedesc.NodeKey, []rangedesc.NodeKey, rangedesc.NodeKey, rangedesc.NodeKey, uint64) (snapwire.StorageRangesReply, error) {
	return snapwire.StorageRangesReply{}, nil
}

func (f *FakePeer) GetByteCodes(context.Context, []rangedesc.NodeKey, uint64) (snapwire.ByteCodesReply, error) {
	return snapwire.ByteCodesReply{}, nil
}

func (f *FakePeer) GetTrieNodes(context.Context, rangedesc.NodeKey, [][]byte, uint64) (snapwire.NodesReply, error) {
	return snapwire.NodesReply{}, nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package heal implements the trie-completion phase: inspect a partially
// built trie for dangling child references, fetch them in batches, and
// import them until the trie is complete.
package heal

import (
	"context"

	"github.com/luxfi/snapsync/corea/pivot"
	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/corea/snapwire"
	"github.com/luxfi/snapsync/corea/trie"
	"github.com/luxfi/snapsync/log"
	"github.com/luxfi/snapsync/metrics"
)

// Tuning constants, non-negotiable per spec §4.6/§6. HealAccountsTrigger
// resolves the Open Question in spec §9: of the four values observed across
// sibling files (0.95, 0.99, 1.01, 1.3), 1.3 is treated as canonical --
// "heal only after one full sweep of the key space has been attempted".
const (
	HealAccountsTrigger     = 1.3
	HealStorageSlotsTrigger = 0.70
	HealAccountsBatchMax    = 10 * 1024
	HealStorageSlotsBatchMax = 32

	// InspectionBatch is the visit budget Step hands to Inspect: one
	// inspection pass stops after this many visited nodes, and the next Step
	// starts a fresh pass from the seeds.
	InspectionBatch = 10_000
)

// Trigger reports whether healing should start for an account trie, given
// the process-wide covered-accounts union's cumulative covered fraction
// (pivot.Manager.CoveredFraction, not CoveredAccounts().FullFactor() -- the
// latter is a disjoint-set ratio that saturates at 1.0 and can never cross
// HealAccountsTrigger).
func Trigger(fullFactor float64) bool {
	return fullFactor > HealAccountsTrigger
}

// StorageTrigger reports whether healing should start for one account's
// storage trie, given that account's own completion factor.
func StorageTrigger(accountFullFactor float64) bool {
	return accountFullFactor > HealStorageSlotsTrigger
}

// Healer drives one pivot environment's healing phase.
type Healer struct {
	env  *pivot.Env
	tdb  *trie.Db
	peer snapwire.Peer

	inFlight []rangedesc.NodeSpec
}

func New(env *pivot.Env, tdb *trie.Db, peer snapwire.Peer) *Healer {
	return &Healer{env: env, tdb: tdb, peer: peer}
}

// Step runs one inspect+enqueue+fetch cycle. It returns true if there is
// more healing work to do.
func (h *Healer) Step(ctx context.Context, fullFactor float64) (bool, error) {
	if !Trigger(fullFactor) {
		return false, nil
	}
	h.env.Heal = pivot.HealRunning

	if len(h.inFlight) < HealAccountsBatchMax {
		dangling := h.tdb.Inspect(h.env.Header.StateRoot, h.env.FetchAccounts.Missing, InspectionBatch, trie.DefaultPlanBLevel)
		if len(dangling) == 0 {
			h.env.Heal = pivot.HealDone
			return false, nil
		}
		room := HealAccountsBatchMax - len(h.inFlight)
		if room > len(dangling) {
			room = len(dangling)
		}
		h.inFlight = append(h.inFlight, dangling[:room]...)
		h.env.FetchAccounts.Missing = dangling[room:]
	}

	if len(h.inFlight) == 0 {
		return false, nil
	}

	batch := h.inFlight
	if len(batch) > 1024 {
		batch = batch[:1024]
	}
	paths := make([][]byte, len(batch))
	for i, spec := range batch {
		paths[i] = spec.Path
	}

	reply, err := h.peer.GetTrieNodes(ctx, h.env.Header.StateRoot, paths, 2*1024*1024)
	if err != nil {
		log.Debug("heal: trie node fetch failed", "err", err)
		return true, err
	}

	for _, raw := range reply.Nodes {
		if _, err := h.tdb.Import(raw, nil, nil); err != nil {
			log.Debug("heal: dropping malformed trie node", "err", err)
			continue
		}
	}
	h.inFlight = h.inFlight[len(reply.Nodes):]
	metrics.Inc("heal/nodesFetched", len(reply.Nodes))
	return true, nil
}

// StepStorage applies the same logic as Step, scoped to one account's
// storage trie, using StorageTrigger/HealStorageSlotsBatchMax instead.
func (h *Healer) StepStorage(ctx context.Context, account, storageRoot rangedesc.NodeKey, accountFullFactor float64, seeds []rangedesc.NodeSpec) ([]rangedesc.NodeSpec, error) {
	if !StorageTrigger(accountFullFactor) {
		return seeds, nil
	}
	dangling := h.tdb.Inspect(storageRoot, seeds, InspectionBatch, trie.DefaultPlanBLevel)
	if len(dangling) == 0 {
		return nil, nil
	}
	batch := dangling
	if len(batch) > HealStorageSlotsBatchMax {
		batch = batch[:HealStorageSlotsBatchMax]
	}
	paths := make([][]byte, len(batch))
	for i, s := range batch {
		paths[i] = s.Path
	}
	reply, err := h.peer.GetTrieNodes(ctx, storageRoot, paths, 2*1024*1024)
	if err != nil {
		return dangling, err
	}
	for _, raw := range reply.Nodes {
		if _, err := h.tdb.Import(raw, nil, nil); err != nil {
			continue
		}
	}
	return dangling[len(reply.Nodes):], nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txitem defines the immutable transaction descriptor the pool's
// four indexes all point at.
package txitem

import (
	"math/big"
	"time"
)

// Status is the pool-internal lifecycle stage of an item, distinct from
// on-chain inclusion. Named Pending/Staged/Packed per spec §3 (this is a
// different vocabulary than go-ethereum's pending/queued split -- see
// DESIGN.md's resolution of the Sender-Schedule Open Question).
type Status uint8

const (
	StatusPending Status = iota
	StatusStaged
	StatusPacked
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStaged:
		return "staged"
	case StatusPacked:
		return "packed"
	default:
		return "unknown"
	}
}

// Address and Hash are opaque 20/32-byte identifiers. RLP decoding, sender
// recovery (ecrecover) and hashing are external collaborators out of scope
// per spec §1; items arrive already validated and addressed.
type Address [20]byte
type Hash [32]byte

// Item is an immutable transaction descriptor apart from Status and
// EffectiveTip, which the pool updates in place on admission-path status
// changes and base-fee reorgs respectively.
type Item struct {
	Hash    Hash
	Sender  Address
	Nonce   uint64

	GasPrice  *big.Int // legacy-style price, nil for EIP-1559 items
	GasTipCap *big.Int
	GasFeeCap *big.Int
	GasLimit  uint64

	Status       Status
	EffectiveTip *big.Int

	Timestamp time.Time
	Payload   []byte
}

// ComputeEffectiveTip returns min(gas-tip-cap, gas-fee-cap - base-fee),
// clamped to >= 0, per spec §6.
func ComputeEffectiveTip(tipCap, feeCap, baseFee *big.Int) *big.Int {
	headroom := new(big.Int).Sub(feeCap, baseFee)
	if headroom.Sign() < 0 {
		return new(big.Int)
	}
	if tipCap.Cmp(headroom) <= 0 {
		return new(big.Int).Set(tipCap)
	}
	return new(big.Int).Set(headroom)
}

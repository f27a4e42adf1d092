// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txindex

import (
	"math/big"

	"github.com/luxfi/snapsync/coreb/txitem"
)

func addr(b byte) txitem.Address {
	var a txitem.Address
	a[19] = b
	return a
}

func hash(b byte) txitem.Hash {
	var h txitem.Hash
	h[31] = b
	return h
}

func newItem(h byte, s txitem.Address, nonce uint64, tip int64, status txitem.Status) *txitem.Item {
	return &txitem.Item{
		Hash:         hash(h),
		Sender:       s,
		Nonce:        nonce,
		GasTipCap:    big.NewInt(tip),
		GasFeeCap:    big.NewInt(tip),
		GasLimit:     21000,
		Status:       status,
		EffectiveTip: big.NewInt(tip),
	}
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txindex

import "errors"

// Typed verification errors for insert/delete, per spec §7. A VfySender*,
// VfyStatus*, or VfyTipCap* error surfacing from production code indicates a
// broken insert/delete discipline -- these should be unreachable given the
// index methods are only ever called from Pool's single-tasklet path.
var (
	ErrVfySenderRbTree    = errors.New("txindex: sender nonce tree corrupt")
	ErrVfySenderLeafEmpty = errors.New("txindex: sender leaf unexpectedly empty")
	ErrVfySenderTotal     = errors.New("txindex: sender/all size mismatch")
	ErrVfySenderDuplicate = errors.New("txindex: duplicate nonce for sender")

	ErrVfyStatusMissing    = errors.New("txindex: status-tree entry missing its mirror")
	ErrVfyStatusGasLimit   = errors.New("txindex: status-tree gas-limit accounting drifted")

	ErrVfyTipCapMissing = errors.New("txindex: tip-cap index entry missing its mirror")
)

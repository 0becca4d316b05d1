// Package imageparams derives the effective filesystem parameters for an
// image from the staged content statistics.
package imageparams

import (
	"fmt"

	"scorch/internal/fsmask"
)

// MaxISOFileBytes is the single-file limit of the ISO9660/Joliet layout.
// Files at or above this size force the image to UDF.
const MaxISOFileBytes = 4*1024*1024*1024 - 1

// DefaultBlockSize is the sector payload size used when the mastering
// backend does not report one.
const DefaultBlockSize = 2048

// Notice is invoked once when mask escalation occurs, with a
// human-readable reason.
type Notice func(reason string)

// ResolveMask computes the effective filesystem mask for the given content.
// When the largest staged file cannot be represented in ISO9660/Joliet and
// the requested mask either includes those layouts or lacks UDF, the mask
// escalates to UDF-only and notice fires exactly once.
func ResolveMask(requested fsmask.Mask, largestFileBytes int64, notice Notice) fsmask.Mask {
	if requested == 0 {
		requested = fsmask.Default
	}
	if largestFileBytes < MaxISOFileBytes {
		return requested
	}
	if requested.HasAny(fsmask.ISO9660|fsmask.Joliet) || !requested.Has(fsmask.UDF) {
		if notice != nil {
			notice(fmt.Sprintf("largest file (%d bytes) exceeds the ISO9660/Joliet single-file limit; switching to UDF", largestFileBytes))
		}
		return fsmask.UDF
	}
	return requested
}

// SizeLimits tracks the working block allowance for one job. The allowance
// only ever grows: repeated configuration for the same job must never
// shrink a limit the image builder already accepted.
type SizeLimits struct {
	blocks int64
}

// Configure computes the block allowance for totalBytes of content and
// returns the new allowance. The estimate is doubled and padded with one
// MiB worth of blocks to absorb filesystem structure overhead.
func (s *SizeLimits) Configure(totalBytes int64, blockSize int64) int64 {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if totalBytes < 0 {
		totalBytes = 0
	}
	estBlocks := (totalBytes + blockSize - 1) / blockSize
	target := estBlocks*2 + (1024*1024)/blockSize
	if target > s.blocks {
		s.blocks = target
	}
	return s.blocks
}

// Blocks returns the current allowance.
func (s *SizeLimits) Blocks() int64 {
	return s.blocks
}

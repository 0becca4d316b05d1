// Package readiness evaluates whether a burn or image job can start, and
// if not, why.
package readiness

import (
	"scorch/internal/mastering"
)

// Mode selects the job flavor being evaluated.
type Mode int

const (
	ModeBurnFiles Mode = iota
	ModeBurnImage
	ModeCreateImage
)

const (
	directBurnOverheadFloor = 128 * 1024 * 1024
	capacityHeadroomFloor   = 32 * 1024 * 1024
)

// Blocking reasons, in the order they are reported.
const (
	ReasonAddSources       = "add files or folders to burn"
	ReasonSelectImage      = "select an ISO image"
	ReasonCalculatingSizes = "calculating sizes"
	ReasonSelectDrive      = "select a destination drive"
	ReasonNoUsableDisc     = "no blank or supported disc in the drive"
	ReasonOverCapacity     = "content exceeds disc capacity"
	ReasonSelectOutput     = "choose an output path for the image"
)

// EstimateOnDiscSize projects contentBytes onto the disc. Direct burns add
// a filesystem-structure margin of max(128 MiB, 7%); image modes pass the
// size through because the image already contains the structures.
func EstimateOnDiscSize(contentBytes int64, mode Mode) int64 {
	if contentBytes < 0 {
		contentBytes = 0
	}
	if mode != ModeBurnFiles {
		return contentBytes
	}
	overhead := contentBytes * 7 / 100
	if overhead < directBurnOverheadFloor {
		overhead = directBurnOverheadFloor
	}
	return contentBytes + overhead
}

// IsOverCapacity reports whether estimatedBytes does not fit capacityBytes
// once a safety headroom of max(32 MiB, 0.25% of capacity) is reserved.
func IsOverCapacity(estimatedBytes, capacityBytes int64) bool {
	if capacityBytes <= 0 {
		return true
	}
	headroom := capacityBytes / 400
	if headroom < capacityHeadroomFloor {
		headroom = capacityHeadroomFloor
	}
	return estimatedBytes > capacityBytes-headroom
}

// Input is a snapshot of everything the evaluator needs.
type Input struct {
	Mode         Mode
	HasSources   bool
	ImageSet     bool
	OutputSet    bool
	SizesPending bool
	ContentBytes int64
	WriterKnown  bool
	Media        mastering.MediaInfo
}

// Result is the evaluation outcome. Reasons is empty iff Ready.
type Result struct {
	Ready   bool
	Reasons []string
}

// Evaluate computes readiness for the snapshot. Reasons accumulate in a
// fixed order: content, pending sizes, drive, media, capacity, output.
// Create-image jobs skip the drive, media, and capacity gates since they
// never touch the recorder.
func Evaluate(in Input) Result {
	var reasons []string

	switch in.Mode {
	case ModeBurnImage:
		if !in.ImageSet {
			reasons = append(reasons, ReasonSelectImage)
		}
	default:
		if !in.HasSources {
			reasons = append(reasons, ReasonAddSources)
		}
	}
	if in.SizesPending {
		reasons = append(reasons, ReasonCalculatingSizes)
	}

	if in.Mode == ModeCreateImage {
		if !in.OutputSet {
			reasons = append(reasons, ReasonSelectOutput)
		}
		return Result{Ready: len(reasons) == 0, Reasons: reasons}
	}

	if !in.WriterKnown {
		reasons = append(reasons, ReasonSelectDrive)
	} else {
		media := in.Media
		if !media.Present || !media.Blank || !media.Supported {
			reasons = append(reasons, ReasonNoUsableDisc)
		} else if !in.SizesPending {
			est := EstimateOnDiscSize(in.ContentBytes, in.Mode)
			if IsOverCapacity(est, media.CapacityBytes) {
				reasons = append(reasons, ReasonOverCapacity)
			}
		}
	}

	return Result{Ready: len(reasons) == 0, Reasons: reasons}
}

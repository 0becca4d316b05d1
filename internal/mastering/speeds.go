package mastering

import (
	"fmt"
	"math"
	"sort"
)

// OneXKBs is the data rate of a 1x DVD write in KB/s.
const OneXKBs = 1385

// Label renders the descriptor as "Nx (~KB/s)". Whole multiples drop the
// fractional part.
func (d SpeedDescriptor) Label() string {
	multiple := d.Multiple
	if multiple <= 0 && d.KBs > 0 {
		multiple = float64(d.KBs) / OneXKBs
	}
	if multiple == math.Trunc(multiple) {
		return fmt.Sprintf("%.0fx (%d KB/s)", multiple, d.KBs)
	}
	return fmt.Sprintf("%.1fx (%d KB/s)", multiple, d.KBs)
}

// NormalizeSpeeds sorts descriptors ascending by rate and removes
// duplicates so callers can present a stable selection list.
func NormalizeSpeeds(speeds []SpeedDescriptor) []SpeedDescriptor {
	out := make([]SpeedDescriptor, 0, len(speeds))
	seen := make(map[int64]struct{}, len(speeds))
	for _, s := range speeds {
		if s.KBs <= 0 {
			continue
		}
		if _, ok := seen[s.KBs]; ok {
			continue
		}
		seen[s.KBs] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KBs < out[j].KBs })
	return out
}

// MaxSpeedKBs returns the fastest rate in the list, or 0 when empty.
func MaxSpeedKBs(speeds []SpeedDescriptor) int64 {
	var maxKBs int64
	for _, s := range speeds {
		if s.KBs > maxKBs {
			maxKBs = s.KBs
		}
	}
	return maxKBs
}

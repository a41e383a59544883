package header

import (
	"fmt"
	"math"

	"github.com/openeeg/ktlx/errs"
)

// Per-band base sensitivities in microvolts per count, taken from the
// device calibration constants of each headbox family.
const (
	sensEEG     = 8711.0 / 220.5
	sensDC      = 5000000.0 / 209.5 / 26
	sensTrigger = 1.0 / 26
	sensSAC     = 10800000.0 / 65536.0 / 26
)

// band is a contiguous run of channels sharing one base sensitivity.
// count 0 means the band stretches over the whole channel range.
type band struct {
	count int
	sens  float64
}

var headboxBands = map[int32][]band{
	1:  {{0, sensEEG}},
	3:  {{0, sensEEG}},
	4:  {{24, sensEEG}, {4, sensDC}},
	21: {{128, sensEEG}, {2, sensTrigger}, {126, sensEEG}},
	22: {{32, sensEEG}, {8, sensSAC}, {2, sensTrigger}, {1, sensSAC}},
}

// ConversionFactors computes the per-channel scale vector that converts raw
// decoded counts into physical units (volts). Each band factor is the
// headbox base sensitivity shifted left by the discard-bit count; the
// concatenated bands are truncated or padded to numChannels and scaled by
// 1e-6 to convert from microvolts.
func ConversionFactors(headboxType, discardBits int32, numChannels int) ([]float64, error) {
	bands, ok := headboxBands[headboxType]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errs.ErrUnsupportedHeadbox, headboxType)
	}

	// 2^discardBits * 1e-6 in one step.
	scale := math.Ldexp(1e-6, int(discardBits))

	factors := make([]float64, 0, numChannels)
	for _, b := range bands {
		n := b.count
		if n == 0 {
			n = numChannels
		}
		for i := 0; i < n; i++ {
			factors = append(factors, b.sens*scale)
		}
	}

	if len(factors) >= numChannels {
		return factors[:numChannels], nil
	}
	// Channel count beyond the band table: extend the last band.
	last := factors[len(factors)-1]
	for len(factors) < numChannels {
		factors = append(factors, last)
	}

	return factors, nil
}

// ConversionFactors computes the scale vector for this header. The first
// headbox slot determines the band table, matching the acquisition
// software's behavior.
func (h *Header) ConversionFactors() ([]float64, error) {
	return ConversionFactors(h.HeadboxTypes[0], h.DiscardBits, h.NumChannels)
}

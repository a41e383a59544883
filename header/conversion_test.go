package header

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openeeg/ktlx/errs"
	"github.com/openeeg/ktlx/format"
)

func TestConversionFactors_EEGOnly(t *testing.T) {
	factors, err := ConversionFactors(1, 0, 32)
	require.NoError(t, err)
	require.Len(t, factors, 32)
	for _, f := range factors {
		// 8711/220.5 uV per count, converted to volts.
		require.InDelta(t, 3.9506e-5, f, 1e-8)
	}
}

func TestConversionFactors_DiscardBits(t *testing.T) {
	base, err := ConversionFactors(1, 0, 1)
	require.NoError(t, err)

	for _, bits := range []int32{1, 2, 3, 6} {
		shifted, err := ConversionFactors(1, bits, 1)
		require.NoError(t, err)
		require.InDelta(t, base[0]*float64(int64(1)<<bits), shifted[0], 1e-12)
	}
}

func TestConversionFactors_Bands(t *testing.T) {
	t.Run("headbox 4 EEG plus DC", func(t *testing.T) {
		factors, err := ConversionFactors(4, 0, 28)
		require.NoError(t, err)
		require.Len(t, factors, 28)
		for c := 0; c < 24; c++ {
			require.InDelta(t, sensEEG*1e-6, factors[c], 1e-12)
		}
		for c := 24; c < 28; c++ {
			require.InDelta(t, sensDC*1e-6, factors[c], 1e-12)
		}
	})

	t.Run("headbox 21 trigger band", func(t *testing.T) {
		factors, err := ConversionFactors(21, 0, 256)
		require.NoError(t, err)
		require.Len(t, factors, 256)
		require.InDelta(t, sensEEG*1e-6, factors[127], 1e-12)
		require.InDelta(t, sensTrigger*1e-6, factors[128], 1e-12)
		require.InDelta(t, sensTrigger*1e-6, factors[129], 1e-12)
		require.InDelta(t, sensEEG*1e-6, factors[130], 1e-12)
	})

	t.Run("headbox 22 SAC bands", func(t *testing.T) {
		factors, err := ConversionFactors(22, 0, 43)
		require.NoError(t, err)
		require.Len(t, factors, 43)
		require.InDelta(t, sensEEG*1e-6, factors[31], 1e-12)
		require.InDelta(t, sensSAC*1e-6, factors[32], 1e-12)
		require.InDelta(t, sensSAC*1e-6, factors[39], 1e-12)
		require.InDelta(t, sensTrigger*1e-6, factors[40], 1e-12)
		require.InDelta(t, sensTrigger*1e-6, factors[41], 1e-12)
		require.InDelta(t, sensSAC*1e-6, factors[42], 1e-12)
	})
}

func TestConversionFactors_ChannelCountMismatch(t *testing.T) {
	t.Run("fewer channels truncates bands", func(t *testing.T) {
		factors, err := ConversionFactors(4, 0, 10)
		require.NoError(t, err)
		require.Len(t, factors, 10)
		for _, f := range factors {
			require.InDelta(t, sensEEG*1e-6, f, 1e-12)
		}
	})

	t.Run("more channels extends the last band", func(t *testing.T) {
		factors, err := ConversionFactors(4, 0, 40)
		require.NoError(t, err)
		require.Len(t, factors, 40)
		require.InDelta(t, sensDC*1e-6, factors[39], 1e-12)
	})
}

func TestConversionFactors_UnsupportedHeadbox(t *testing.T) {
	_, err := ConversionFactors(99, 0, 8)
	require.ErrorIs(t, err, errs.ErrUnsupportedHeadbox)
}

func TestHeaderConversionFactors(t *testing.T) {
	h := testHeader(format.Schema8, 4)
	h.DiscardBits = 2

	factors, err := h.ConversionFactors()
	require.NoError(t, err)
	require.Len(t, factors, 4)
	require.InDelta(t, 4*3.9506e-5, factors[0], 1e-7)
}

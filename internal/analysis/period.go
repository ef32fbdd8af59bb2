package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/looptune/internal/dynamo"
)

// MinSamples is the shortest series the spectral estimators accept.
const MinSamples = 8

// Spectrum is the one-sided amplitude spectrum of a detrended signal.
// Freq is in Hz.
type Spectrum struct {
	Freq []float64
	Amp  []float64
}

// PowerSpectrum removes the linear trend, zero-pads x to a power of two and
// transforms it.
func PowerSpectrum(x []float64, dt float64) (Spectrum, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return Spectrum{}, dynamo.Invalid("dt", dt, "must be positive")
	}
	if len(x) < MinSamples {
		return Spectrum{}, fmt.Errorf("%w: %d samples, need %d", dynamo.ErrInsufficientData, len(x), MinSamples)
	}
	r := detrend(x)
	if flat(r, x) {
		return Spectrum{}, fmt.Errorf("%w: signal is flat", dynamo.ErrInsufficientData)
	}

	n := nextPow2(len(r))
	padded := make([]float64, n)
	copy(padded, r)

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, padded)

	s := Spectrum{Freq: make([]float64, len(coeff)), Amp: make([]float64, len(coeff))}
	for i, c := range coeff {
		s.Freq[i] = fft.Freq(i) / dt
		s.Amp[i] = cmplx.Abs(c)
	}
	return s, nil
}

// DominantPeriod returns the period, in seconds, of the largest non-DC
// spectral peak. The peak is refined by parabolic interpolation between
// neighbouring bins.
func DominantPeriod(x []float64, dt float64) (float64, error) {
	s, err := PowerSpectrum(x, dt)
	if err != nil {
		return 0, err
	}
	peak := 1
	for i := 2; i < len(s.Amp); i++ {
		if s.Amp[i] > s.Amp[peak] {
			peak = i
		}
	}
	if s.Amp[peak] == 0 {
		return 0, fmt.Errorf("%w: no spectral peak", dynamo.ErrInsufficientData)
	}

	bin := float64(peak)
	if peak+1 < len(s.Amp) {
		a, b, c := s.Amp[peak-1], s.Amp[peak], s.Amp[peak+1]
		if den := a - 2*b + c; den != 0 {
			bin += 0.5 * (a - c) / den
		}
	}
	df := s.Freq[1] - s.Freq[0]
	f := bin * df
	if !(f > 0) {
		return 0, fmt.Errorf("%w: no spectral peak", dynamo.ErrInsufficientData)
	}
	return 1 / f, nil
}

func detrend(x []float64) []float64 {
	idx := make([]float64, len(x))
	for i := range idx {
		idx[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(idx, x, nil, false)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - (alpha + beta*idx[i])
	}
	return out
}

func flat(residual, x []float64) bool {
	scale := 1.0
	for _, v := range x {
		scale = math.Max(scale, math.Abs(v))
	}
	for _, v := range residual {
		if math.Abs(v) > 1e-9*scale {
			return false
		}
	}
	return true
}

func nextPow2(n int) int {
	m := 1
	for m < n {
		m <<= 1
	}
	return m
}

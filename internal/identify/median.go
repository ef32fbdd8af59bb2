package identify

import (
	"iter"
	"math"
	"slices"

	"github.com/san-kum/looptune/internal/dynamo"
)

// MedianSeq lazily yields the moving median of x. Windows at the edges
// shrink instead of padding; window <= 1 yields x. An even window is widened
// by one so it stays centred. MovingMedian rejects even windows instead.
func MedianSeq(x []float64, window int) iter.Seq2[int, float64] {
	if window > 1 && window%2 == 0 {
		window++
	}
	half := window / 2
	return func(yield func(int, float64) bool) {
		buf := make([]float64, 0, max(window, 1))
		for i, v := range x {
			if window <= 1 {
				if !yield(i, v) {
					return
				}
				continue
			}
			lo, hi := max(0, i-half), min(len(x), i+half+1)
			buf = append(buf[:0], x[lo:hi]...)
			if !yield(i, sortedMedian(buf)) {
				return
			}
		}
	}
}

// MovingMedian collects MedianSeq.
func MovingMedian(x []float64, window int) ([]float64, error) {
	if window > 1 && window%2 == 0 {
		return nil, dynamo.Invalid("window", float64(window), "must be odd")
	}
	out := make([]float64, 0, len(x))
	for _, v := range MedianSeq(x, window) {
		out = append(out, v)
	}
	return out, nil
}

func median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return sortedMedian(slices.Clone(x))
}

// sortedMedian sorts buf in place.
func sortedMedian(buf []float64) float64 {
	slices.Sort(buf)
	n := len(buf)
	if n%2 == 1 {
		return buf[n/2]
	}
	return (buf[n/2-1] + buf[n/2]) / 2
}

// mad is the median absolute deviation about the median.
func mad(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := median(x)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - m)
	}
	return sortedMedian(dev)
}

// madScale converts a MAD to a Gaussian standard deviation.
const madScale = 1.4826

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	d := make([]float64, len(x)-1)
	for i := range d {
		d[i] = x[i+1] - x[i]
	}
	return d
}

// NoiseSigma estimates white measurement noise from first differences,
// which ignores steps and slow trends.
func NoiseSigma(x []float64) float64 {
	return madScale * mad(diff(x)) / math.Sqrt2
}

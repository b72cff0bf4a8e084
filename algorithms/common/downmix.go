package common

// Downmix averages interleaved channels into a mono signal. A trailing
// partial frame is dropped. The result never aliases the input.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		copy(out, interleaved)
		return out
	}

	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	scale := 1.0 / float64(channels)
	for i := range frames {
		sum := 0.0
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum * scale
	}
	return mono
}

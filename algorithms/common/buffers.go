package common

// SampleBuffer is a fixed-capacity ring of mono samples for streaming analysis.
// When full, new samples overwrite the oldest ones (FIFO eviction).
// SampleBuffer is not safe for concurrent use; the owner provides locking.
type SampleBuffer struct {
	buffer   []float64
	size     int
	writePos int
	count    int
	written  uint64
}

// NewSampleBuffer creates a new sample buffer holding at most size samples
func NewSampleBuffer(size int) *SampleBuffer {
	if size < 1 {
		size = 1
	}
	return &SampleBuffer{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Write appends samples, evicting the oldest data once the buffer is full.
// It returns len(data) even when part of an oversized write is evicted at once.
func (sb *SampleBuffer) Write(data []float64) int {
	n := len(data)

	// Only the last size samples of an oversized write can survive
	if len(data) > sb.size {
		data = data[len(data)-sb.size:]
	}

	for _, sample := range data {
		sb.buffer[sb.writePos] = sample
		sb.writePos = (sb.writePos + 1) % sb.size
		if sb.count < sb.size {
			sb.count++
		}
	}
	sb.written += uint64(n)
	return n
}

// Tail copies the most recent n samples into dst, oldest first, without
// consuming them. It returns the number of samples copied, which is
// min(n, Len(), len(dst)).
func (sb *SampleBuffer) Tail(dst []float64, n int) int {
	n = min(n, sb.count, len(dst))
	if n <= 0 {
		return 0
	}

	start := (sb.writePos - n + sb.size) % sb.size
	if start+n <= sb.size {
		copy(dst, sb.buffer[start:start+n])
		return n
	}

	// Wrapped: copy the end of the backing array, then the beginning
	first := copy(dst, sb.buffer[start:])
	copy(dst[first:], sb.buffer[:n-first])
	return n
}

// Snapshot returns every buffered sample in time order
func (sb *SampleBuffer) Snapshot() []float64 {
	out := make([]float64, sb.count)
	sb.Tail(out, sb.count)
	return out
}

// Len returns number of buffered samples
func (sb *SampleBuffer) Len() int {
	return sb.count
}

// Cap returns the buffer capacity
func (sb *SampleBuffer) Cap() int {
	return sb.size
}

// Written returns the total number of samples ever written, including evicted ones
func (sb *SampleBuffer) Written() uint64 {
	return sb.written
}

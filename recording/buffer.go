package recording

import "sync"

// chunkBuffer accumulates captured chunks in arrival order until drained.
// Chunks arriving after Drain are dropped.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
	sealed bool
}

func (b *chunkBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
}

// Drain seals the buffer and returns the concatenated payload.
func (b *chunkBuffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	payload := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		payload = append(payload, c...)
	}
	b.chunks = nil
	b.size = 0
	return payload
}

func (b *chunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

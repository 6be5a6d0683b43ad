package stream

// Batch is an ordered group of records written in one pipeline
type Batch []Record

// Batcher accumulates records into batches of a fixed size
type Batcher struct {
	size int
	buf  Batch
}

// NewBatcher creates a batcher emitting batches of size records. Sizes
// below one are treated as one.
func NewBatcher(size int) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{
		size: size,
		buf:  make(Batch, 0, size),
	}
}

// Add appends a record. When the buffer reaches capacity the full batch is
// returned with true and a fresh buffer takes its place; the returned
// batch is no longer referenced by the batcher.
func (b *Batcher) Add(rec Record) (Batch, bool) {
	b.buf = append(b.buf, rec)
	if len(b.buf) < b.size {
		return nil, false
	}

	full := b.buf
	b.buf = make(Batch, 0, b.size)
	return full, true
}

// Flush returns the partial batch, if any, and resets the buffer
func (b *Batcher) Flush() (Batch, bool) {
	if len(b.buf) == 0 {
		return nil, false
	}

	partial := b.buf
	b.buf = make(Batch, 0, b.size)
	return partial, true
}

// Len returns the number of buffered records
func (b *Batcher) Len() int {
	return len(b.buf)
}

package types

// DataChunk is a triple (owned bytes, length, read-offset) held in the
// throttled socket adapter's FIFO. Invariant: 0 <= Offset <= Length;
// once Offset == Length the chunk is discarded.
type DataChunk struct {
	Data   []byte
	Length int
	Offset int
}

// Remaining returns the unread tail of the chunk.
func (c *DataChunk) Remaining() int {
	return c.Length - c.Offset
}

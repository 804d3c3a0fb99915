package message

// AppendID appends id as base-128 groups, low group first, setting 0x80 on
// every byte that has a successor. Zero encodes as a single 0x00.
func AppendID(dst []byte, id uint64) []byte {
	for {
		b := byte(id % 128)
		id /= 128
		if id != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if id == 0 {
			return dst
		}
	}
}

// ReadID decodes a base-128 id from the front of b and returns the value
// and the number of bytes read.
func ReadID(b []byte) (uint64, int, error) {
	var id uint64
	for i := 0; ; i++ {
		if i >= len(b) {
			return 0, 0, ErrTruncated
		}
		if i >= maxIDBytes {
			return 0, 0, ErrIDOverflow
		}
		c := b[i]
		group := uint64(c & 0x7F)
		if i == maxIDBytes-1 && group > 1 {
			return 0, 0, ErrIDOverflow
		}
		id |= group << (7 * uint(i))
		if c&0x80 == 0 {
			return id, i + 1, nil
		}
	}
}

package rawio

import (
	"fmt"
	"io"
	"sort"
)

// extent is one segment's placement within the reconstructed whole.
type extent struct {
	volumeOffset int64
	length       int64
	r            io.ReaderAt
}

// MultiReaderAt concatenates several segment readers, each covering a
// disjoint byte range, into one logical io.ReaderAt spanning the whole
// volume. It is how the inspection mount presents a copy's N segment
// files as a single addressable byte stream without ever copying the
// segments together on disk.
type MultiReaderAt struct {
	extents []extent
	size    int64
}

// NewMultiReaderAt builds a MultiReaderAt from segments, keyed by their
// starting volume offset. Segments must be contiguous and non-overlapping
// starting at offset 0, matching the Copy invariant in the data model.
func NewMultiReaderAt(segments []struct {
	Offset int64
	Length int64
	Reader io.ReaderAt
}) (*MultiReaderAt, error) {
	exts := make([]extent, len(segments))
	for i, s := range segments {
		exts[i] = extent{volumeOffset: s.Offset, length: s.Length, r: s.Reader}
	}
	sort.Slice(exts, func(i, j int) bool { return exts[i].volumeOffset < exts[j].volumeOffset })

	var size int64
	for i, e := range exts {
		if e.volumeOffset != size {
			return nil, fmt.Errorf("rawio: segment %d starts at %d, want contiguous offset %d", i, e.volumeOffset, size)
		}
		size += e.length
	}
	return &MultiReaderAt{extents: exts, size: size}, nil
}

// Size reports the total addressable length.
func (m *MultiReaderAt) Size() int64 {
	return m.size
}

// ReadAt implements io.ReaderAt, splitting a read across extent
// boundaries as needed.
func (m *MultiReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= m.size {
		return 0, io.EOF
	}
	idx := sort.Search(len(m.extents), func(i int) bool {
		return m.extents[i].volumeOffset+m.extents[i].length > off
	})

	var total int
	for idx < len(m.extents) && total < len(p) {
		e := m.extents[idx]
		inner := off + int64(total) - e.volumeOffset
		want := len(p) - total
		if avail := e.length - inner; int64(want) > avail {
			want = int(avail)
		}
		n, err := e.r.ReadAt(p[total:total+want], inner)
		total += n
		if err != nil && err != io.EOF {
			return total, err
		}
		if n < want {
			return total, io.ErrUnexpectedEOF
		}
		idx++
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

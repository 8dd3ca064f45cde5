// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"encoding/binary"
	"fmt"
)

// TagStructWriter builds the body of a tag-struct packet (§3 "Tag-struct",
// §6.2). This is the "primitive put" half of the tag-structure codec named
// out of scope in §1; the core only needs the handful of primitives its
// outbound commands use.
type TagStructWriter interface {
	PutUint8(v uint8)
	PutUint32(v uint32)
	PutString(s string)
	PutBytes(b []byte)
	PutPropList(p PropList)
	Bytes() []byte
}

// TagStructReader parses the body of a tag-struct packet. This is the
// "primitive get" half of the codec named out of scope in §1.
type TagStructReader interface {
	GetUint8() (uint8, error)
	GetUint32() (uint32, error)
	GetString() (string, error)
	GetBytes() ([]byte, error)
	GetPropList() (PropList, error)

	// Empty reports whether every field has been consumed. The core's
	// request continuations do not call it: a reply's tail is not
	// checked for being empty or well formed.
	Empty() bool
}

// TagStructCodec constructs [TagStructWriter]/[TagStructReader] instances.
// Implementations are free to use any wire representation; the core only
// relies on writer/reader round-tripping through the primitives above.
type TagStructCodec interface {
	NewWriter() TagStructWriter
	NewReader(payload []byte) TagStructReader
}

// field type tags for the default codec's self-describing encoding.
const (
	fieldUint8 byte = iota
	fieldUint32
	fieldString
	fieldBytes
	fieldPropList
)

// defaultTagStructCodec is a minimal, self-describing tag-struct codec
// used when the caller does not supply a richer one (§1 names the real
// tag-structure codec as an external collaborator; this is a working
// stand-in, not a wire-compatibility claim against any existing daemon).
type defaultTagStructCodec struct{}

// NewDefaultTagStructCodec returns the [TagStructCodec] used by
// [NewConfig].
func NewDefaultTagStructCodec() TagStructCodec {
	return defaultTagStructCodec{}
}

func (defaultTagStructCodec) NewWriter() TagStructWriter {
	return &defaultTagStructWriter{}
}

func (defaultTagStructCodec) NewReader(payload []byte) TagStructReader {
	return &defaultTagStructReader{buf: payload}
}

type defaultTagStructWriter struct {
	buf []byte
}

var _ TagStructWriter = &defaultTagStructWriter{}

func (w *defaultTagStructWriter) PutUint8(v uint8) {
	w.buf = append(w.buf, fieldUint8, v)
}

func (w *defaultTagStructWriter) PutUint32(v uint32) {
	w.buf = append(w.buf, fieldUint32)
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *defaultTagStructWriter) PutString(s string) {
	w.buf = append(w.buf, fieldString)
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *defaultTagStructWriter) PutBytes(b []byte) {
	w.buf = append(w.buf, fieldBytes)
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *defaultTagStructWriter) PutPropList(p PropList) {
	w.buf = append(w.buf, fieldPropList)
	if p == nil {
		w.buf = binary.BigEndian.AppendUint32(w.buf, 0)
		return
	}
	keys := p.Keys()
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(keys)))
	for _, k := range keys {
		v, _ := p.Get(k)
		w.PutString(k)
		w.PutString(v)
	}
}

func (w *defaultTagStructWriter) Bytes() []byte {
	return w.buf
}

type defaultTagStructReader struct {
	buf []byte
	pos int
}

var _ TagStructReader = &defaultTagStructReader{}

func (r *defaultTagStructReader) Empty() bool {
	return r.pos >= len(r.buf)
}

func (r *defaultTagStructReader) expect(tag byte) error {
	if r.pos >= len(r.buf) {
		return fmt.Errorf("paconn: tagstruct: truncated field, wanted tag %d", tag)
	}
	if r.buf[r.pos] != tag {
		return fmt.Errorf("paconn: tagstruct: expected tag %d, got %d", tag, r.buf[r.pos])
	}
	r.pos++
	return nil
}

func (r *defaultTagStructReader) GetUint8() (uint8, error) {
	if err := r.expect(fieldUint8); err != nil {
		return 0, err
	}
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("paconn: tagstruct: truncated uint8")
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *defaultTagStructReader) GetUint32() (uint32, error) {
	if err := r.expect(fieldUint32); err != nil {
		return 0, err
	}
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("paconn: tagstruct: truncated uint32")
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *defaultTagStructReader) getLenPrefixed(tag byte) ([]byte, error) {
	if err := r.expect(tag); err != nil {
		return nil, err
	}
	if r.pos+4 > len(r.buf) {
		return nil, fmt.Errorf("paconn: tagstruct: truncated length")
	}
	n := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	if r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("paconn: tagstruct: truncated payload")
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *defaultTagStructReader) GetString() (string, error) {
	b, err := r.getLenPrefixed(fieldString)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *defaultTagStructReader) GetBytes() ([]byte, error) {
	return r.getLenPrefixed(fieldBytes)
}

func (r *defaultTagStructReader) GetPropList() (PropList, error) {
	if err := r.expect(fieldPropList); err != nil {
		return nil, err
	}
	if r.pos+4 > len(r.buf) {
		return nil, fmt.Errorf("paconn: tagstruct: truncated proplist length")
	}
	n := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	pl := NewPropList()
	for i := uint32(0); i < n; i++ {
		k, err := r.GetString()
		if err != nil {
			return nil, err
		}
		v, err := r.GetString()
		if err != nil {
			return nil, err
		}
		pl.Set(k, v)
	}
	return pl, nil
}

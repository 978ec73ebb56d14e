// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datagram

import (
	"strconv"
	"unicode/utf8"

	"code.hybscloud.com/duplex"
)

// Marshaller converts a payload of type T to and from the wire bytes of one
// datagram: spec.md's C9. Write commits the encoded payload into buf
// (backed by a duplex.SegmentBuffer so large payloads span segments without
// copying); a zero-byte commit means "drop this frame, do not send it."
// Read decodes the full contents of a single received datagram.
type Marshaller[T any] interface {
	Write(payload T, buf *duplex.SegmentBuffer) error
	Read(data []byte) (T, error)
}

// BytesMarshaller passes payloads through unchanged: the identity
// marshaller for raw datagram bodies.
type BytesMarshaller struct{}

func (BytesMarshaller) Write(payload []byte, buf *duplex.SegmentBuffer) error {
	return writeAll(buf, payload)
}

func (BytesMarshaller) Read(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// UTF8StringMarshaller encodes a string as its UTF-8 bytes, with no length
// prefix — the datagram boundary is the message boundary.
type UTF8StringMarshaller struct{}

func (UTF8StringMarshaller) Write(payload string, buf *duplex.SegmentBuffer) error {
	return writeAll(buf, []byte(payload))
}

func (UTF8StringMarshaller) Read(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", duplex.ErrIncompleteDecodingFrame
	}
	return string(data), nil
}

// UTF8Int32Marshaller encodes an int32 as its base-10 UTF-8 text
// representation, matching spec.md §8's scenario S3 wire format.
type UTF8Int32Marshaller struct{}

func (UTF8Int32Marshaller) Write(payload int32, buf *duplex.SegmentBuffer) error {
	return writeAll(buf, []byte(strconv.FormatInt(int64(payload), 10)))
}

func (UTF8Int32Marshaller) Read(data []byte) (int32, error) {
	n, err := strconv.ParseInt(string(data), 10, 32)
	if err != nil {
		return 0, &duplex.IOError{Err: err}
	}
	return int32(n), nil
}

// RuneMarshaller encodes a []rune as UTF-8 bytes and decodes a received
// datagram back into its full rune sequence, matching spec.md §8's "char
// memory" round-trip requirement.
type RuneMarshaller struct{}

func (RuneMarshaller) Write(payload []rune, buf *duplex.SegmentBuffer) error {
	return writeAll(buf, []byte(string(payload)))
}

func (RuneMarshaller) Read(data []byte) ([]rune, error) {
	if !utf8.Valid(data) {
		return nil, duplex.ErrIncompleteDecodingFrame
	}
	return []rune(string(data)), nil
}

// writeAll commits payload into buf in block-sized spans, the general
// shape every Marshaller.Write implementation needs since a payload can
// exceed one SegmentBuffer block.
func writeAll(buf *duplex.SegmentBuffer, payload []byte) error {
	for len(payload) > 0 {
		span, err := buf.GetSpan(0)
		if err != nil {
			return err
		}
		n := copy(span, payload)
		if err := buf.Advance(n); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

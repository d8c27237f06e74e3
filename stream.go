package sbloom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// writeChunkWords is the number of uint64 words staged per Write call.
const writeChunkWords = 512

// WriteTo writes the MarshalBinary encoding of f to w without materializing
// the whole encoding in memory. It implements io.WriterTo.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	var header [headerSize]byte
	f.putHeader(header[:])

	n, err := w.Write(header[:])
	written := int64(n)
	if err != nil {
		return written, err
	}

	buf := make([]byte, 0, writeChunkWords*8)
	for start := 0; start < len(f.blocks); start += writeChunkWords {
		end := min(start+writeChunkWords, len(f.blocks))
		buf = buf[:0]
		for _, word := range f.blocks[start:end] {
			buf = binary.LittleEndian.AppendUint64(buf, word)
		}
		n, err = w.Write(buf)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

// ReadFilter reads one encoded Filter from r, consuming exactly the bytes
// of that encoding. A stream that ends early yields an error wrapping both
// ErrInvalidData and io.ErrUnexpectedEOF.
//
// The block payload is buffered as it arrives, so a header that claims more
// blocks than the stream holds fails without a large up-front allocation.
func ReadFilter(r io.Reader) (*Filter, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, truncated(err, "filter header")
	}

	h, err := parseHeader(header[:])
	if err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	if _, err := io.CopyN(&payload, r, int64(h.payloadSize())); err != nil {
		return nil, truncated(err, "filter blocks")
	}

	return h.build(payload.Bytes()), nil
}

// truncated maps short-read errors onto ErrInvalidData. Other reader errors
// are returned unchanged.
func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidData, what, io.ErrUnexpectedEOF)
	}
	return err
}

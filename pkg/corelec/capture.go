// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CaptureRecord is one transport chunk as received, stored as a CBOR map
// {0: unix-nanos, 1: bytes} in a CBOR sequence.
type CaptureRecord struct {
	UnixNano int64  `cbor:"0,keyasint"`
	Data     []byte `cbor:"1,keyasint"`
}

// Time returns the record's receive time
func (r CaptureRecord) Time() time.Time {
	return time.Unix(0, r.UnixNano)
}

// CaptureWriter appends chunk records to a capture stream
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter creates a capture writer on w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Write records one chunk with the given receive time
func (c *CaptureWriter) Write(at time.Time, chunk []byte) error {
	rec := CaptureRecord{UnixNano: at.UnixNano(), Data: chunk}
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// CaptureReader reads chunk records from a capture stream
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a capture reader on r
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (c *CaptureReader) Next() (CaptureRecord, error) {
	var rec CaptureRecord
	if err := c.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return CaptureRecord{}, io.EOF
		}
		return CaptureRecord{}, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corelec

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomGarbage returns up to max bytes that never contain the marker
func randomGarbage(rng *rand.Rand, max int) []byte {
	data := make([]byte, rng.Intn(max+1))
	for i := range data {
		b := byte(rng.Intn(256))
		if b == Marker {
			b = 0x00
		}
		data[i] = b
	}
	return data
}

// randomStream builds a stream of valid frames separated by marker-free garbage
func randomStream(rng *rand.Rand) ([]byte, [][]byte) {
	var stream []byte
	var frames [][]byte

	count := rng.Intn(5) + 1
	for i := 0; i < count; i++ {
		stream = append(stream, randomGarbage(rng, 40)...)

		var payload [13]byte
		rng.Read(payload[:])
		mnemonics := []byte("MESADBJ")
		frame := BuildFrame(mnemonics[rng.Intn(len(mnemonics))], payload)

		frames = append(frames, frame)
		stream = append(stream, frame...)
	}
	stream = append(stream, randomGarbage(rng, 40)...)
	return stream, frames
}

// TestFuzzAssembler_ChunkBoundaries splits the same stream at random points
// and verifies the extracted frames do not depend on the split
func TestFuzzAssembler_ChunkBoundaries(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		stream, want := randomStream(rng)

		a := NewAssembler()
		var got [][]byte
		for pos := 0; pos < len(stream); {
			n := rng.Intn(32) + 1
			if pos+n > len(stream) {
				n = len(stream) - pos
			}
			for _, f := range a.IngestAll(stream[pos : pos+n]) {
				got = append(got, f.Bytes())
			}
			pos += n
		}

		if len(got) != len(want) {
			t.Fatalf("Round %d: got %d frames, want %d (stream % X)", i, len(got), len(want), stream)
		}
		for j := range want {
			if !bytes.Equal(got[j], want[j]) {
				t.Fatalf("Round %d frame %d: got % X, want % X", i, j, got[j], want[j])
			}
		}
		if a.ChecksumRejects() != 0 {
			t.Fatalf("Round %d: unexpected checksum rejects %d", i, a.ChecksumRejects())
		}
	}
}

// TestFuzzAssembler_RandomBytes feeds random bytes and verifies every emitted
// frame passes validation and the buffer stays bounded
func TestFuzzAssembler_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	a := NewAssembler()
	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(128)+1)
		rng.Read(data)
		// bias towards markers so candidates appear
		for j := range data {
			if rng.Intn(8) == 0 {
				data[j] = Marker
			}
		}

		for _, f := range a.IngestAll(data) {
			if _, err := ParseFrame(f.Bytes()); err != nil {
				t.Fatalf("Round %d: emitted invalid frame % X: %v", i, f.Bytes(), err)
			}
		}
		if a.Buffered() > DefaultHighWater {
			t.Fatalf("Round %d: buffer grew to %d", i, a.Buffered())
		}
	}
}

// TestFuzzDecode_RandomFrames decodes and formats random valid frames
func TestFuzzDecode_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		var payload [13]byte
		rng.Read(payload[:])
		f, err := ParseFrame(BuildFrame(byte(rng.Intn(256)), payload))
		if err != nil {
			t.Fatalf("Round %d: ParseFrame: %v", i, err)
		}

		_, _ = Decode(f)
		_ = FormatFrame(f)
		if m, ok := DecodeMeasurement(f); ok {
			_ = ValidateMeasurement(m)
		}
	}
}

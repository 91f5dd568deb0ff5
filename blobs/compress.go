// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobs

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a payload travels on the wire. The values
// are protocol constants.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

// compressThreshold is the smallest payload worth compressing.
const compressThreshold = 512

// sampleSize bounds how much of a payload is trial-compressed when
// choosing an algorithm.
const sampleSize = 64 << 10

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("blobs: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxBlobSize))
	if err != nil {
		panic("blobs: zstd decoder initialization failed: " + err.Error())
	}
}

// errIncompressible means compression would not shrink the payload.
var errIncompressible = errors.New("data is incompressible")

// selectCompression samples the head of data with zstd. A ratio of 1.5
// or better picks zstd; 1.1 or better picks the faster lz4; anything
// less is sent as is.
func selectCompression(data []byte) Compression {
	if len(data) < compressThreshold {
		return CompressionNone
	}
	sample := data[:min(len(data), sampleSize)]
	compressed := zstdEncoder.EncodeAll(sample, nil)
	ratio := float64(len(sample)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return CompressionZstd
	case ratio >= 1.1:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// compressPayload picks an algorithm and applies it, falling back to
// CompressionNone when the result would not be smaller.
func compressPayload(data []byte) ([]byte, Compression, error) {
	tag := selectCompression(data)
	var (
		compressed []byte
		err        error
	)
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, tag, nil
}

// decompressPayload reverses compressPayload. size is the declared
// uncompressed length and is verified.
func decompressPayload(payload []byte, tag Compression, size int) ([]byte, error) {
	if size < 0 || size > MaxBlobSize {
		return nil, fmt.Errorf("declared size %d out of range", size)
	}
	switch tag {
	case CompressionNone:
		if len(payload) != size {
			return nil, fmt.Errorf("payload is %d bytes, declared %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, declared %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, declared %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// Zero means lz4 found nothing to compress.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

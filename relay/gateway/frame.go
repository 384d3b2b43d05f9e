// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionTag identifies the compression applied to a frame body.
// The tag is the first byte of every frame on the wire — changing
// these values breaks protocol compatibility with deployed workers.
type CompressionTag uint8

const (
	// CompressionNone indicates an uncompressed body. Used for small
	// frames where zstd overhead outweighs the savings.
	CompressionNone CompressionTag = 0

	// CompressionZstd indicates a zstd-compressed body. Command
	// output is text-like and compresses well.
	CompressionZstd CompressionTag = 1
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// compressThreshold is the body size above which frames are
// compressed. Below it the zstd header and CPU cost are not worth
// paying.
const compressThreshold = 4 * 1024

// zstdEncoder and zstdDecoder are reused across frames. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("gateway: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("gateway: zstd decoder initialization failed: " + err.Error())
	}
}

// EncodeFrame wraps an encoded body in a wire frame: one compression
// tag byte followed by the (possibly compressed) body. Bodies at or
// below the threshold, and bodies zstd cannot shrink, are sent
// uncompressed.
func EncodeFrame(body []byte) []byte {
	if len(body) > compressThreshold {
		compressed := zstdEncoder.EncodeAll(body, make([]byte, 1, len(body)/2))
		if len(compressed) < len(body)+1 {
			compressed[0] = byte(CompressionZstd)
			return compressed
		}
	}
	frame := make([]byte, len(body)+1)
	frame[0] = byte(CompressionNone)
	copy(frame[1:], body)
	return frame
}

// DecodeFrame unwraps a wire frame and returns the body.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	tag := CompressionTag(frame[0])
	body := frame[1:]
	switch tag {
	case CompressionNone:
		return body, nil
	case CompressionZstd:
		decoded, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unknown compression tag %d", tag)
	}
}

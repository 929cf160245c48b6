// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// compression tags stored next to each cached body. Values are
// persisted; do not renumber.
const (
	compressionNone = 0
	compressionZstd = 1
)

// Encoder and decoder are safe for concurrent use and shared by every
// cache in the process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("catalog: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("catalog: zstd decoder initialization failed: " + err.Error())
	}
}

// compressBody returns body zstd-compressed when that is smaller,
// otherwise body unchanged, with the tag to store alongside it.
func compressBody(body []byte) ([]byte, int) {
	compressed := zstdEncoder.EncodeAll(body, nil)
	if len(compressed) >= len(body) {
		return body, compressionNone
	}
	return compressed, compressionZstd
}

func decompressBody(stored []byte, tag int) ([]byte, error) {
	switch tag {
	case compressionNone:
		return stored, nil
	case compressionZstd:
		body, err := zstdDecoder.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return body, nil
	}
	return nil, fmt.Errorf("unknown compression tag %d", tag)
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package frame implements the Sensirion command framing: a big-endian 16-bit
// command word optionally followed by argument words, where every data word
// travels as two bytes plus a CRC8 check byte. Replies use the same word+CRC
// grouping.
package frame

import (
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/airmon/fault"
)

// WordSize is the on-wire size of one data word and its CRC.
const WordSize = 3

var (
	// ErrFraming is returned when a reply is not a whole number of words.
	ErrFraming = errors.New("frame: length is not a multiple of 3")
	// ErrChecksum is returned when a word does not match its CRC byte.
	ErrChecksum = errors.New("frame: crc mismatch")
)

// Encode returns the bytes for command opcode followed by args.
func Encode(opcode uint16, args ...uint16) []byte {
	w := make([]byte, 2, 2+len(args)*WordSize)
	w[0] = byte(opcode >> 8)
	w[1] = byte(opcode)
	return append(w, EncodeWords(args...)...)
}

// EncodeWords converts the word values into bytes with the CRC following
// each word.
func EncodeWords(words ...uint16) []byte {
	bytes := make([]byte, len(words)*WordSize)
	for ix, val := range words {
		bytes[ix*3] = byte(val >> 8)
		bytes[ix*3+1] = byte(val)
		bytes[ix*3+2] = CRC8(bytes[ix*3 : ix*3+2])
	}
	return bytes
}

// Decode converts a reply into words, verifying the CRC of each one.
//
// The returned error carries fault.Framing or fault.Checksum and wraps
// ErrFraming or ErrChecksum respectively.
func Decode(buf []byte) ([]uint16, error) {
	if len(buf)%WordSize != 0 {
		return nil, &fault.E{K: fault.Framing, Op: fmt.Sprintf("decode %d bytes", len(buf)), Err: ErrFraming}
	}
	result := make([]uint16, len(buf)/WordSize)
	for ix := range result {
		group := buf[ix*3 : ix*3+3]
		if crc := CRC8(group[:2]); group[2] != crc {
			return nil, &fault.E{
				K:   fault.Checksum,
				Op:  fmt.Sprintf("decode word %d: got 0x%02x want 0x%02x", ix, group[2], crc),
				Err: ErrChecksum,
			}
		}
		result[ix] = uint16(group[0])<<8 | uint16(group[1])
	}
	return result, nil
}

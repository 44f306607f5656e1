// Package ir provides the record types stored and exchanged by govbot.
//
// This package contains data definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal except codec.
//
// Key design constraints:
//   - Every persisted record is addressed by a key that is a pure function of
//     its content: prefix + big-endian xxhash64 of a canonical encoding
//     (see hash.go for the exact field set hashed per record).
//   - Records form a closed union (Value / Record). Only types in this
//     package implement it, so codecs can switch exhaustively.
//   - Payload field access goes through per-variant accessor tables built at
//     init time; unknown fields read as null, never as an error.
//   - Rendering is total: unsupported (variant, mode) pairs return
//     DisplayNotSupported.
//   - One rank comparator (CompareRank) orders mixed numeric/text values for
//     every sort in the system.
package ir

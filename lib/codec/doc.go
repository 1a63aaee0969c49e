// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR encoding configuration shared by nvx
// packages that persist internal state.
//
// The serialization boundary is the same everywhere: JSON for anything
// a person or another tool reads (control channel listings, --json CLI
// output), CBOR for internal state files such as the transition
// journal. Encoding uses Core Deterministic Encoding (RFC 8949 §4.2),
// so the same value always produces the same bytes.
//
//	data, err := codec.Marshal(state)
//	err = codec.Unmarshal(data, &state)
package codec

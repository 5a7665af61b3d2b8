// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/md4"
)

// valid reports whether m is a known signature magic.
func (m Magic) valid() bool {
	switch m {
	case MagicMD4, MagicBLAKE2, MagicBLAKE3:
		return true
	default:
		return false
	}
}

// strongSize returns the untruncated digest size of m's strong hash.
func (m Magic) strongSize() int {
	switch m {
	case MagicMD4:
		return 16
	case MagicBLAKE2, MagicBLAKE3:
		return 32
	default:
		panic(fmt.Sprintf("strongSize of invalid magic %#08x", uint32(m)))
	}
}

// sum computes the full-width strong hash of one block.
func (m Magic) sum(block []byte) []byte {
	switch m {
	case MagicMD4:
		h := md4.New()
		h.Write(block)
		return h.Sum(nil)
	case MagicBLAKE2:
		digest := blake2b.Sum256(block)
		return digest[:]
	case MagicBLAKE3:
		digest := blake3.Sum256(block)
		return digest[:]
	default:
		panic(fmt.Sprintf("sum with invalid magic %#08x", uint32(m)))
	}
}

// String returns the hash name for a magic, suitable for flags and
// log output.
func (m Magic) String() string {
	switch m {
	case MagicMD4:
		return "md4"
	case MagicBLAKE2:
		return "blake2"
	case MagicBLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%#08x)", uint32(m))
	}
}

// ParseHash converts a hash name from flags or configuration into the
// corresponding signature magic.
func ParseHash(name string) (Magic, error) {
	switch name {
	case "md4":
		return MagicMD4, nil
	case "blake2":
		return MagicBLAKE2, nil
	case "blake3":
		return MagicBLAKE3, nil
	default:
		return 0, fmt.Errorf("unknown strong hash %q (want md4, blake2, or blake3)", name)
	}
}

// Package contact detects, classifies and aggregates spatial contacts between
// atoms of one or more structures.
package contact

import (
	"fmt"
	"strings"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

// ChainKey identifies a chain within a multi-structure run.
type ChainKey struct {
	Structure string
	Chain     string
}

func (k ChainKey) String() string { return k.Structure + ":" + k.Chain }

// Less orders by structure label, then chain.
func (k ChainKey) Less(o ChainKey) bool {
	if k.Structure != o.Structure {
		return k.Structure < o.Structure
	}
	return k.Chain < o.Chain
}

// MarshalText renders "structure:chain" so ChainKey can key JSON objects.
func (k ChainKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText splits on the last ':'; chain identifiers never contain one.
func (k *ChainKey) UnmarshalText(b []byte) error {
	s := string(b)
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return fmt.Errorf("contact: chain key %q has no ':' separator", s)
	}
	k.Structure, k.Chain = s[:i], s[i+1:]
	return nil
}

// ChainPairKey is an unordered pair of chains with A <= B.
type ChainPairKey struct {
	A ChainKey `json:"a"`
	B ChainKey `json:"b"`
}

// NewChainPairKey orders x and y so that A <= B.
func NewChainPairKey(x, y ChainKey) ChainPairKey {
	if y.Less(x) {
		x, y = y, x
	}
	return ChainPairKey{A: x, B: y}
}

func (k ChainPairKey) String() string { return k.A.String() + "|" + k.B.String() }

// Less orders by A, then B.
func (k ChainPairKey) Less(o ChainPairKey) bool {
	if k.A != o.A {
		return k.A.Less(o.A)
	}
	return k.B.Less(o.B)
}

// PairKey is the canonical key of an unordered atom pair, Lo < Hi.
type PairKey struct {
	Lo structure.AtomKey
	Hi structure.AtomKey
}

// NewPairKey orders x and y.
func NewPairKey(x, y structure.AtomKey) PairKey {
	if y.Less(x) {
		x, y = y, x
	}
	return PairKey{Lo: x, Hi: y}
}

// Less orders by Lo, then Hi.
func (k PairKey) Less(o PairKey) bool {
	if k.Lo != o.Lo {
		return k.Lo.Less(o.Lo)
	}
	return k.Hi.Less(o.Hi)
}

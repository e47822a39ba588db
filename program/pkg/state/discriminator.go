package state

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// DiscriminatorLen is the number of bytes every account and event record is prefixed with.
const DiscriminatorLen = 8

type Discriminator [DiscriminatorLen]byte

func sighash(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

func AccountDiscriminator(name string) Discriminator {
	return sighash("account", name)
}

func EventDiscriminator(name string) Discriminator {
	return sighash("event", name)
}

// InstructionDiscriminator hashes the snake_case instruction name.
func InstructionDiscriminator(name string) Discriminator {
	return sighash("global", name)
}

func (d Discriminator) String() string {
	return fmt.Sprintf("%x", d[:])
}

// HasDiscriminator reports whether data starts with d.
func HasDiscriminator(data []byte, d Discriminator) bool {
	return len(data) >= DiscriminatorLen && bytes.Equal(data[:DiscriminatorLen], d[:])
}

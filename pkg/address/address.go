// Package address validates Ergo addresses without touching wallet
// cryptography: base58 shape, network prefix, and length only.
package address

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Network prefixes from the Ergo address encoding. The head byte is
// network + type, where mainnet is 0x00 and testnet is 0x10.
const (
	mainnetPrefix = 0x00
	testnetPrefix = 0x10

	typeP2PK = 0x01

	// prefix byte + 33-byte compressed public key + 4-byte checksum
	p2pkLength = 38
	minLength  = 6
)

var (
	ErrEmpty         = errors.New("address is empty")
	ErrNotBase58     = errors.New("address is not valid base58")
	ErrTooShort      = errors.New("address is too short")
	ErrWrongNetwork  = errors.New("address is for a different network")
	ErrUnknownPrefix = errors.New("address has an unknown prefix")
)

// Validate checks that addr is a plausibly well-formed Ergo address for the
// given network ("mainnet" or "testnet"). It does not verify the blake2b
// checksum; the node rejects truly corrupt addresses at submission time.
func Validate(addr, networkType string) error {
	if addr == "" {
		return ErrEmpty
	}

	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotBase58, err)
	}
	if len(decoded) < minLength {
		return ErrTooShort
	}

	head := decoded[0]
	network := head & 0xF0
	switch networkType {
	case "testnet":
		if network != testnetPrefix {
			return ErrWrongNetwork
		}
	default:
		if network != mainnetPrefix {
			return ErrWrongNetwork
		}
	}

	addrType := head & 0x0F
	switch addrType {
	case typeP2PK:
		if len(decoded) != p2pkLength {
			return fmt.Errorf("p2pk address has wrong length %d", len(decoded))
		}
	case 0x02, 0x03: // pay-to-script-hash, pay-to-script
	default:
		return ErrUnknownPrefix
	}

	return nil
}

// IsValid is a convenience wrapper around Validate.
func IsValid(addr, networkType string) bool {
	return Validate(addr, networkType) == nil
}

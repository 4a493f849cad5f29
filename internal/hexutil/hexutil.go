// Package hexutil provides unified hexadecimal string handling for
// addresses, block numbers, and big integer quantities exchanged with the
// JSON-RPC endpoint. It generalizes the fixed-size-key hex helpers
// idiomatic chain clients carry (trim/normalize/decode) to the quantity
// and address encodings Ethereum-family JSON-RPC uses.
package hexutil

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// TrimPrefix removes a "0x"/"0X" prefix if present.
func TrimPrefix(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "0x")
	value = strings.TrimPrefix(value, "0X")
	return value
}

// Normalize returns a canonical lowercase hex string with no 0x prefix.
func Normalize(value string) string {
	return strings.ToLower(TrimPrefix(value))
}

// NormalizeAddress returns the canonical lowercase, 0x-prefixed, 20-byte
// address form used as primary identity across Token/Transaction/
// AddressStatistics.
func NormalizeAddress(value string) string {
	return "0x" + Normalize(value)
}

// DecodeString decodes a hex string to bytes, tolerating an optional
// "0x"/"0X" prefix.
func DecodeString(value string) ([]byte, error) {
	value = TrimPrefix(value)
	if len(value)%2 != 0 {
		value = "0" + value
	}
	return hex.DecodeString(value)
}

// EncodeWithPrefix converts bytes to a "0x"-prefixed hex string.
func EncodeWithPrefix(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}

// QuantityToHex encodes a block number as the minimal "0x"-prefixed hex
// quantity JSON-RPC expects (no leading zeros, "0x0" for zero).
func QuantityToHex(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

// HexToUint64 decodes a "0x"-prefixed hex quantity into a uint64.
func HexToUint64(value string) (uint64, error) {
	trimmed := TrimPrefix(value)
	if trimmed == "" {
		return 0, fmt.Errorf("hexutil: empty quantity")
	}
	return strconv.ParseUint(trimmed, 16, 64)
}

// HexToBigInt decodes a "0x"-prefixed hex quantity into a *big.Int.
func HexToBigInt(value string) (*big.Int, error) {
	trimmed := TrimPrefix(value)
	if trimmed == "" {
		return nil, fmt.Errorf("hexutil: empty quantity")
	}
	result, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("hexutil: invalid hex quantity %q", value)
	}
	return result, nil
}

// BigIntToHex encodes a *big.Int as a "0x"-prefixed hex quantity.
func BigIntToHex(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

// AddressFromTopic extracts a 20-byte address from the last 20 bytes of a
// 32-byte indexed event topic, stripping left-padding. Returns an error
// if topic is not 32 bytes once decoded.
func AddressFromTopic(topic string) (string, error) {
	raw, err := DecodeString(topic)
	if err != nil {
		return "", fmt.Errorf("decode topic: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("topic must be 32 bytes, got %d", len(raw))
	}
	return NormalizeAddress(hex.EncodeToString(raw[12:])), nil
}

// IsValidHex reports whether value (with optional 0x prefix) is a
// well-formed even-length hex string.
func IsValidHex(value string) bool {
	value = TrimPrefix(value)
	if value == "" || len(value)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}

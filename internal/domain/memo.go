package domain

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

const (
	MemoTypeText = "text"
	MemoTypeID   = "id"
	MemoTypeHash = "hash"
	MemoTypeNone = "none"

	maxTextMemoBytes = 28
	hashMemoBytes    = 32
)

var (
	ErrInvalidMemo    = errors.New("invalid memo")
	ErrInvalidAccount = errors.New("invalid account")
)

// ValidateMemo checks that memo is well formed for memoType. Hash memos are
// accepted as base64 or hex and returned normalized to base64.
func ValidateMemo(memo, memoType string) (string, error) {
	switch memoType {
	case MemoTypeText:
		if len(memo) > maxTextMemoBytes {
			return "", fmt.Errorf("%w: text memo %q exceeds %d bytes", ErrInvalidMemo, memo, maxTextMemoBytes)
		}
		return memo, nil
	case MemoTypeID:
		if _, err := strconv.ParseUint(memo, 10, 64); err != nil {
			return "", fmt.Errorf("%w: id memo %q is not an unsigned 64-bit integer", ErrInvalidMemo, memo)
		}
		return memo, nil
	case MemoTypeHash:
		if raw, err := base64.StdEncoding.DecodeString(memo); err == nil && len(raw) == hashMemoBytes {
			return memo, nil
		}
		if raw, err := hex.DecodeString(memo); err == nil && len(raw) == hashMemoBytes {
			return base64.StdEncoding.EncodeToString(raw), nil
		}
		return "", fmt.Errorf("%w: hash memo must be %d bytes", ErrInvalidMemo, hashMemoBytes)
	case MemoTypeNone:
		if memo != "" {
			return "", fmt.Errorf("%w: memo must be empty for memo type none", ErrInvalidMemo)
		}
		return "", nil
	default:
		return "", fmt.Errorf("%w: unsupported memo type %q", ErrInvalidMemo, memoType)
	}
}

const (
	versionAccountID    byte = 6 << 3
	versionMuxedAccount byte = 12 << 3
)

// ValidateAccount checks that account is a G... or M... strkey with a valid checksum.
func ValidateAccount(account string) error {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(account)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAccount, account)
	}
	var payloadLen int
	switch {
	case len(raw) > 0 && raw[0] == versionAccountID:
		payloadLen = 32
	case len(raw) > 0 && raw[0] == versionMuxedAccount:
		payloadLen = 40
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAccount, account)
	}
	if len(raw) != 1+payloadLen+2 {
		return fmt.Errorf("%w: %s", ErrInvalidAccount, account)
	}
	body := raw[:len(raw)-2]
	want := binary.LittleEndian.Uint16(raw[len(raw)-2:])
	if crc16XModem(body) != want {
		return fmt.Errorf("%w: checksum mismatch for %s", ErrInvalidAccount, account)
	}
	return nil
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

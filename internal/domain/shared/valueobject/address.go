package valueobject

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the byte length of an account address
const AddressLength = 20

// Address is a value object identifying an account on the ledger (a holder,
// a token contract or a vault). It is a fixed 20-byte identifier rendered as
// 0x-prefixed lowercase hex, or EIP-55 mixed case via Checksum.
type Address struct {
	raw [AddressLength]byte
}

// ZeroAddress is the null address
var ZeroAddress = Address{}

// ParseAddress parses a 0x-prefixed 40 character hex string. Single-case
// input is taken as is; mixed case must carry a valid EIP-55 checksum.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return Address{}, fmt.Errorf("address must start with 0x: %q", s)
	}
	body := s[2:]
	if len(body) != AddressLength*2 {
		return Address{}, fmt.Errorf("address must have %d hex characters, got %d", AddressLength*2, len(body))
	}
	b, err := hex.DecodeString(body)
	if err != nil {
		return Address{}, fmt.Errorf("address is not valid hex: %w", err)
	}
	var a Address
	copy(a.raw[:], b)
	if isMixedCase(body) && a.Checksum()[2:] != body {
		return Address{}, fmt.Errorf("address checksum mismatch: %q", s)
	}
	return a, nil
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}

// MustParseAddress is like ParseAddress but panics on error
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes builds an address from the last 20 bytes of b
func AddressFromBytes(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a.raw[AddressLength-len(b):], b)
	return a
}

// Bytes returns a copy of the raw bytes
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.raw[:])
	return out
}

// IsZero reports whether this is the null address
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Equals returns true if both addresses are the same
func (a Address) Equals(other Address) bool {
	return a == other
}

// String returns the 0x-prefixed lowercase hex form
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a.raw[:])
}

// Checksum returns the EIP-55 form: a hex letter is upper case when the
// matching nibble of the Keccak-256 hash of the lowercase form is >= 8.
func (a Address) Checksum() string {
	lower := []byte(hex.EncodeToString(a.raw[:]))
	h := sha3.NewLegacyKeccak256()
	h.Write(lower)
	digest := h.Sum(nil)

	for i, c := range lower {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			lower[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(lower)
}

// Short returns an abbreviated form for log output
func (a Address) Short() string {
	s := a.String()
	return s[:6] + ".." + s[len(s)-4:]
}

// MarshalJSON implements json.Marshaler
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer for database storage
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner for database retrieval
func (a *Address) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*a = ZeroAddress
		return nil
	case string:
		parsed, err := ParseAddress(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := ParseAddress(string(v))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Address", value)
	}
}

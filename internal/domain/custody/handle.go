package custody

import (
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// AssetHandle identifies a fungible asset (an underlying token or a share token).
// It is a distinct type from VaultHandle so the two cannot be swapped at a call site.
type AssetHandle struct {
	addr valueobject.Address
}

// NewAssetHandle wraps an address as an asset handle
func NewAssetHandle(addr valueobject.Address) AssetHandle {
	return AssetHandle{addr: addr}
}

// ParseAssetHandle parses a hex address into an asset handle
func ParseAssetHandle(s string) (AssetHandle, error) {
	addr, err := valueobject.ParseAddress(s)
	if err != nil {
		return AssetHandle{}, invalidArgument("asset", err.Error())
	}
	return AssetHandle{addr: addr}, nil
}

// Address returns the underlying address
func (h AssetHandle) Address() valueobject.Address { return h.addr }

// IsValid reports whether the handle refers to a non-null address
func (h AssetHandle) IsValid() bool { return !h.addr.IsZero() }

func (h AssetHandle) String() string { return h.addr.String() }

// VaultHandle identifies a pooled-investment vault
type VaultHandle struct {
	addr valueobject.Address
}

// NewVaultHandle wraps an address as a vault handle
func NewVaultHandle(addr valueobject.Address) VaultHandle {
	return VaultHandle{addr: addr}
}

// ParseVaultHandle parses a hex address into a vault handle
func ParseVaultHandle(s string) (VaultHandle, error) {
	addr, err := valueobject.ParseAddress(s)
	if err != nil {
		return VaultHandle{}, invalidArgument("vault", err.Error())
	}
	return VaultHandle{addr: addr}, nil
}

// Address returns the underlying address
func (h VaultHandle) Address() valueobject.Address { return h.addr }

// IsValid reports whether the handle refers to a non-null address
func (h VaultHandle) IsValid() bool { return !h.addr.IsZero() }

func (h VaultHandle) String() string { return h.addr.String() }

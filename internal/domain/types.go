package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainOptimism        Chain = "eip155:10"
	ChainPolygon         Chain = "eip155:137"
	ChainBase            Chain = "eip155:8453"
	ChainArbitrum        Chain = "eip155:42161"
	ChainEthereumSepolia Chain = "eip155:11155111"
)

// IsPrimary reports whether the chain is the primary network, where v1 history
// is only reachable through the indexed path
func (c Chain) IsPrimary() bool {
	return c == ChainEthereumMainnet
}

// EVMChainID returns the numeric chain id of an eip155 chain
func (c Chain) EVMChainID() (uint64, error) {
	namespace, reference, ok := strings.Cut(string(c), ":")
	if !ok || namespace != "eip155" {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}
	id, err := strconv.ParseUint(reference, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}
	return id, nil
}

// Family is the contract family a split belongs to
type Family string

const (
	FamilyV1 Family = "v1"
	FamilyV2 Family = "v2"
)

// Version identifies the deployed contract generation of a split.
// Every switch over Version must handle all four values.
type Version string

const (
	VersionV1  Version = "v1"
	VersionV2  Version = "v2"
	VersionV21 Version = "v2.1"
	VersionV22 Version = "v2.2"
)

// V2Versions lists the v2 sub-versions from oldest to newest
var V2Versions = []Version{VersionV2, VersionV21, VersionV22}

// Family returns the contract family of the version
func (v Version) Family() Family {
	switch v {
	case VersionV1:
		return FamilyV1
	case VersionV2, VersionV21, VersionV22:
		return FamilyV2
	}
	return ""
}

// IsNewest reports whether the version is the newest v2 sub-version
func (v Version) IsNewest() bool {
	return v == VersionV22
}

// RequiresCreateLog reports whether a split of this version can only be
// reconstructed once its creation event has been located
func (v Version) RequiresCreateLog() bool {
	switch v {
	case VersionV1, VersionV2:
		return true
	case VersionV21, VersionV22:
		return false
	}
	return true
}

// ParseV2Version maps the version string reported by a v2 split wallet
func ParseV2Version(s string) (Version, error) {
	switch s {
	case "2":
		return VersionV2, nil
	case "2.1":
		return VersionV21, nil
	case "2.2":
		return VersionV22, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVersion, s)
}

// Direction is the distribution direction of a v2 split
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Recipient is a single payee of a split
type Recipient struct {
	Address           common.Address `json:"address"`
	OwnershipUnits    *big.Int       `json:"ownership_units"`
	PercentAllocation float64        `json:"percent_allocation"` // 0-100
}

// Split is the canonical state of a split reconstructed from chain history
type Split struct {
	Address               common.Address  `json:"address"`
	Chain                 Chain           `json:"chain"`
	Family                Family          `json:"family"`
	Version               Version         `json:"version"`
	Direction             Direction       `json:"direction,omitempty"` // v2 only
	Controller            *common.Address `json:"controller"`          // nil when immutable
	Paused                bool            `json:"paused"`
	Recipients            []Recipient     `json:"recipients"`
	TotalAllocation       *big.Int        `json:"total_allocation"`
	DistributorFeePercent float64         `json:"distributor_fee_percent"`
	CreateBlock           uint64          `json:"create_block"` // 0 when the creation event was not located
	UpdateBlock           uint64          `json:"update_block"`
}

// FactorySet holds the v2 factories of one sub-version on one chain
type FactorySet struct {
	Pull       common.Address
	Push       common.Address
	StartBlock uint64
}

// ChainConfig is the per-chain address and deployment table
type ChainConfig struct {
	Chain        Chain
	SplitMain    common.Address // v1, zero when v1 is not deployed
	V1StartBlock uint64
	V2           map[Version]FactorySet
}

// SupportsV1 reports whether the v1 SplitMain is deployed on the chain
func (c ChainConfig) SupportsV1() bool {
	return c.SplitMain != (common.Address{})
}

// SupportsV2 reports whether any v2 factory is deployed on the chain
func (c ChainConfig) SupportsV2() bool {
	return len(c.V2) > 0
}

// StartBlock returns the deployment block of the given version, which is the
// floor of every history walk
func (c ChainConfig) StartBlock(v Version) uint64 {
	if v == VersionV1 {
		return c.V1StartBlock
	}
	return c.V2[v].StartBlock
}

// Factories returns the contracts that may have emitted the creation event of
// a split of the given version
func (c ChainConfig) Factories(v Version) []common.Address {
	switch v {
	case VersionV1:
		return []common.Address{c.SplitMain}
	case VersionV2, VersionV21, VersionV22:
		fs := c.V2[v]
		return []common.Address{fs.Pull, fs.Push}
	}
	return nil
}

// Candidates returns the addresses whose logs are searched for the split
func (c ChainConfig) Candidates(v Version, split common.Address) []common.Address {
	if v == VersionV1 {
		return c.Factories(v)
	}
	return append([]common.Address{split}, c.Factories(v)...)
}

// DirectionOf returns the direction implied by the factory that created a v2 split
func (c ChainConfig) DirectionOf(v Version, factory common.Address) (Direction, bool) {
	fs, ok := c.V2[v]
	if !ok {
		return "", false
	}
	switch factory {
	case fs.Pull:
		return DirectionPull, true
	case fs.Push:
		return DirectionPush, true
	}
	return "", false
}

// ParseAddress parses a hex encoded split address
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// PercentOf returns value / total * 100 rounded to the nearest float64.
// A missing or zero total yields 0.
func PercentOf(value, total *big.Int) float64 {
	if value == nil || total == nil || total.Sign() == 0 {
		return 0
	}
	percent, _ := new(big.Rat).SetFrac(new(big.Int).Mul(value, big.NewInt(100)), total).Float64()
	return percent
}

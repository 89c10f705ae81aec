package domain

import "github.com/ethereum/go-ethereum/common"

// ScanBlocks records where the previous scan found the split's events
type ScanBlocks struct {
	CreateBlock *uint64 `json:"create_block,omitempty"`
	UpdateBlock *uint64 `json:"update_block,omitempty"`
	// LatestScannedBlock is the chain head the previous scan walked back from
	LatestScannedBlock *uint64 `json:"latest_scanned_block,omitempty"`
}

// ScanCache is the caller-owned result of a previous search. It is produced by
// one resolution and may be passed verbatim into the next; it is never mutated
// after being returned.
type ScanCache struct {
	BlockRange uint64          `json:"block_range"`
	Controller *common.Address `json:"controller,omitempty"`
	Blocks     ScanBlocks      `json:"blocks"`
}

// Clone returns a deep copy of the cache
func (c *ScanCache) Clone() *ScanCache {
	if c == nil {
		return nil
	}
	clone := &ScanCache{
		BlockRange: c.BlockRange,
		Controller: cloneAddress(c.Controller),
		Blocks: ScanBlocks{
			CreateBlock:        cloneUint64(c.Blocks.CreateBlock),
			UpdateBlock:        cloneUint64(c.Blocks.UpdateBlock),
			LatestScannedBlock: cloneUint64(c.Blocks.LatestScannedBlock),
		},
	}
	return clone
}

// ControllerMatches reports whether the cache observed the given controller at
// the end of its scan. A cache without a controller hint never matches.
func (c *ScanCache) ControllerMatches(controller common.Address) bool {
	if c == nil || c.Controller == nil {
		return false
	}
	return *c.Controller == controller
}

// Uint64Ptr returns a pointer to v
func Uint64Ptr(v uint64) *uint64 {
	return &v
}

func cloneUint64(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	return Uint64Ptr(*v)
}

func cloneAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	addr := *a
	return &addr
}

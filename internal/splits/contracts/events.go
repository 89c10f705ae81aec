package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/feral-file/ff-splits/internal/domain"
)

// EventKind tells creation events apart from update events
type EventKind int

const (
	EventCreate EventKind = iota
	EventUpdate
)

func (k EventKind) String() string {
	if k == EventCreate {
		return "create"
	}
	return "update"
}

// Schema binds the creation and update events of one split version
type Schema struct {
	Version domain.Version
	create  abi.Event
	update  abi.Event
}

// CreateTopic is the topic0 of the creation event
func (s Schema) CreateTopic() common.Hash {
	return s.create.ID
}

// UpdateTopic is the topic0 of the update event
func (s Schema) UpdateTopic() common.Hash {
	return s.update.ID
}

// UpdateEmittedBySplit reports whether update events come from the split
// address rather than from a shared contract
func (s Schema) UpdateEmittedBySplit() bool {
	return s.Version.Family() == domain.FamilyV2
}

// SchemaFor returns the event schema of the version
func SchemaFor(v domain.Version) (Schema, error) {
	switch v {
	case domain.VersionV1:
		return Schema{
			Version: v,
			create:  SplitMainV1ABI.Events["CreateSplit"],
			update:  SplitMainV1ABI.Events["UpdateSplit"],
		}, nil
	case domain.VersionV2:
		return Schema{
			Version: v,
			create:  SplitFactoryV2ABI.Events["SplitCreated"],
			update:  SplitWalletV2ABI.Events["SplitUpdated"],
		}, nil
	case domain.VersionV21, domain.VersionV22:
		return Schema{
			Version: v,
			create:  SplitFactoryV21ABI.Events["SplitCreated"],
			update:  SplitWalletV2ABI.Events["SplitUpdated"],
		}, nil
	}
	return Schema{}, fmt.Errorf("%w: %q", domain.ErrUnknownVersion, v)
}

// SplitEvent is a decoded creation or update event
type SplitEvent struct {
	Kind    EventKind
	Version domain.Version
	Split   common.Address
	// Emitter is the contract that emitted the log: SplitMain, a factory or the split
	Emitter     common.Address
	Recipients  []common.Address
	Allocations []*big.Int
	// TotalAllocation is the allocation total declared by the event
	TotalAllocation *big.Int
	// DistributorFee is scaled so that 1e6 means 100%
	DistributorFee *big.Int
	// Owner is the controller declared at creation, nil on update events
	Owner       *common.Address
	BlockNumber uint64
	LogIndex    uint
}

// After reports whether e is more recent than other, by block then log index
func (e *SplitEvent) After(other *SplitEvent) bool {
	if other == nil {
		return true
	}
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber > other.BlockNumber
	}
	return e.LogIndex > other.LogIndex
}

// PercentageScale is the v1 total allocation and the fee scale of every version
var PercentageScale = big.NewInt(1_000_000)

// v1 event payloads
type createSplitV1 struct {
	Accounts           []common.Address
	PercentAllocations []uint32
	DistributorFee     uint32
	Controller         common.Address
}

type updateSplitV1 struct {
	Accounts           []common.Address
	PercentAllocations []uint32
	DistributorFee     uint32
}

// SplitParams mirrors the SplitV2Lib.Split struct carried by v2 events
type SplitParams struct {
	Recipients            []common.Address
	Allocations           []*big.Int
	TotalAllocation       *big.Int
	DistributionIncentive uint16
}

// Decode decodes a creation or update log of the schema's version
func (s Schema) Decode(log types.Log) (*SplitEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %s:%d has no topics", log.TxHash.Hex(), log.Index)
	}

	var kind EventKind
	switch log.Topics[0] {
	case s.create.ID:
		kind = EventCreate
	case s.update.ID:
		kind = EventUpdate
	default:
		return nil, fmt.Errorf("unexpected event topic %s for %s split", log.Topics[0].Hex(), s.Version)
	}

	event := &SplitEvent{
		Kind:        kind,
		Version:     s.Version,
		Emitter:     log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}

	var err error
	switch s.Version {
	case domain.VersionV1:
		err = s.decodeV1(log, event)
	case domain.VersionV2, domain.VersionV21, domain.VersionV22:
		err = s.decodeV2(log, event)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownVersion, s.Version)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s Schema) decodeV1(log types.Log, event *SplitEvent) error {
	if len(log.Topics) < 2 {
		return fmt.Errorf("v1 %s log is missing the split topic", event.Kind)
	}
	event.Split = common.BytesToAddress(log.Topics[1].Bytes())

	var (
		accounts    []common.Address
		allocations []uint32
		fee         uint32
	)
	switch event.Kind {
	case EventCreate:
		var payload createSplitV1
		if err := SplitMainV1ABI.UnpackIntoInterface(&payload, "CreateSplit", log.Data); err != nil {
			return fmt.Errorf("failed to unpack CreateSplit: %w", err)
		}
		accounts, allocations, fee = payload.Accounts, payload.PercentAllocations, payload.DistributorFee
		owner := payload.Controller
		event.Owner = &owner
	case EventUpdate:
		var payload updateSplitV1
		if err := SplitMainV1ABI.UnpackIntoInterface(&payload, "UpdateSplit", log.Data); err != nil {
			return fmt.Errorf("failed to unpack UpdateSplit: %w", err)
		}
		accounts, allocations, fee = payload.Accounts, payload.PercentAllocations, payload.DistributorFee
	}

	if len(accounts) != len(allocations) {
		return fmt.Errorf("v1 %s log has %d accounts but %d allocations", event.Kind, len(accounts), len(allocations))
	}
	event.Recipients = accounts
	event.Allocations = make([]*big.Int, len(allocations))
	for i, a := range allocations {
		event.Allocations[i] = new(big.Int).SetUint64(uint64(a))
	}
	event.TotalAllocation = new(big.Int).Set(PercentageScale)
	event.DistributorFee = new(big.Int).SetUint64(uint64(fee))
	return nil
}

func (s Schema) decodeV2(log types.Log, event *SplitEvent) error {
	var params SplitParams

	switch event.Kind {
	case EventCreate:
		if len(log.Topics) < 2 {
			return fmt.Errorf("v2 creation log is missing the split topic")
		}
		event.Split = common.BytesToAddress(log.Topics[1].Bytes())

		values, err := s.create.Inputs.Unpack(log.Data)
		if err != nil {
			return fmt.Errorf("failed to unpack SplitCreated: %w", err)
		}
		// splitParams, owner, creator and, from v2.1 on, salt
		if len(values) < 3 {
			return fmt.Errorf("SplitCreated carries %d values", len(values))
		}
		converted, ok := abi.ConvertType(values[0], new(SplitParams)).(*SplitParams)
		if !ok {
			return fmt.Errorf("unexpected SplitCreated params type %T", values[0])
		}
		params = *converted
		owner, ok := values[1].(common.Address)
		if !ok {
			return fmt.Errorf("unexpected SplitCreated owner type %T", values[1])
		}
		event.Owner = &owner
	case EventUpdate:
		event.Split = log.Address

		values, err := s.update.Inputs.Unpack(log.Data)
		if err != nil {
			return fmt.Errorf("failed to unpack SplitUpdated: %w", err)
		}
		if len(values) != 1 {
			return fmt.Errorf("SplitUpdated carries %d values", len(values))
		}
		converted, ok := abi.ConvertType(values[0], new(SplitParams)).(*SplitParams)
		if !ok {
			return fmt.Errorf("unexpected SplitUpdated params type %T", values[0])
		}
		params = *converted
	}

	if len(params.Recipients) != len(params.Allocations) {
		return fmt.Errorf("v2 %s log has %d recipients but %d allocations", event.Kind, len(params.Recipients), len(params.Allocations))
	}
	if params.TotalAllocation == nil {
		return fmt.Errorf("v2 %s log has no total allocation", event.Kind)
	}
	event.Recipients = params.Recipients
	event.Allocations = params.Allocations
	event.TotalAllocation = params.TotalAllocation
	event.DistributorFee = new(big.Int).SetUint64(uint64(params.DistributionIncentive))
	return nil
}

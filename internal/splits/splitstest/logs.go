package splitstest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/splits/contracts"
)

// Allocation is a recipient share used to build event logs
type Allocation struct {
	Account common.Address
	Units   uint64
}

// Address derives a deterministic address from a label
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

// V1CreateLog builds a SplitMain CreateSplit log
func V1CreateLog(splitMain, split common.Address, block uint64, index uint, allocations []Allocation, fee uint32, controller common.Address) types.Log {
	accounts, units := v1Allocations(allocations)
	ev := contracts.SplitMainV1ABI.Events["CreateSplit"]
	return buildLog(ev, splitMain, block, index, []common.Hash{ev.ID, addressTopic(split)},
		accounts, units, fee, controller)
}

// V1UpdateLog builds a SplitMain UpdateSplit log
func V1UpdateLog(splitMain, split common.Address, block uint64, index uint, allocations []Allocation, fee uint32) types.Log {
	accounts, units := v1Allocations(allocations)
	ev := contracts.SplitMainV1ABI.Events["UpdateSplit"]
	return buildLog(ev, splitMain, block, index, []common.Hash{ev.ID, addressTopic(split)},
		accounts, units, fee)
}

// V2CreateLog builds a factory SplitCreated log using the schema of the version
func V2CreateLog(version domain.Version, factory, split common.Address, block uint64, index uint, params contracts.SplitParams, owner common.Address) types.Log {
	switch version {
	case domain.VersionV2:
		ev := contracts.SplitFactoryV2ABI.Events["SplitCreated"]
		return buildLog(ev, factory, block, index, []common.Hash{ev.ID, addressTopic(split)},
			params, owner, owner)
	case domain.VersionV21, domain.VersionV22:
		ev := contracts.SplitFactoryV21ABI.Events["SplitCreated"]
		return buildLog(ev, factory, block, index, []common.Hash{ev.ID, addressTopic(split)},
			params, owner, owner, [32]byte(crypto.Keccak256Hash(split.Bytes())))
	case domain.VersionV1:
	}
	panic(fmt.Sprintf("splitstest: %s has no v2 creation log", version))
}

// V2UpdateLog builds a split wallet SplitUpdated log
func V2UpdateLog(split common.Address, block uint64, index uint, params contracts.SplitParams) types.Log {
	ev := contracts.SplitWalletV2ABI.Events["SplitUpdated"]
	return buildLog(ev, split, block, index, []common.Hash{ev.ID}, params)
}

// V2Params builds v2 split parameters whose total allocation is the sum of the units
func V2Params(allocations []Allocation, incentive uint16) contracts.SplitParams {
	params := contracts.SplitParams{
		TotalAllocation:       new(big.Int),
		DistributionIncentive: incentive,
	}
	for _, a := range allocations {
		units := new(big.Int).SetUint64(a.Units)
		params.Recipients = append(params.Recipients, a.Account)
		params.Allocations = append(params.Allocations, units)
		params.TotalAllocation.Add(params.TotalAllocation, units)
	}
	return params
}

func v1Allocations(allocations []Allocation) ([]common.Address, []uint32) {
	accounts := make([]common.Address, len(allocations))
	units := make([]uint32, len(allocations))
	for i, a := range allocations {
		accounts[i] = a.Account
		units[i] = uint32(a.Units) //nolint:gosec,G115 // v1 units are bounded by 1e6
	}
	return accounts, units
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func buildLog(ev abi.Event, emitter common.Address, block uint64, index uint, topics []common.Hash, values ...interface{}) types.Log {
	data, err := ev.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("splitstest: failed to pack %s: %v", ev.Name, err))
	}
	return types.Log{
		Address:     emitter,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      crypto.Keccak256Hash(emitter.Bytes(), new(big.Int).SetUint64(block).Bytes(), []byte{byte(index)}),
		Index:       index,
	}
}

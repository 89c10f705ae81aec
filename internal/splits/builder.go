package splits

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/splits/contracts"
)

// BuildInput carries everything BuildSplit needs
type BuildInput struct {
	Address   common.Address
	Chain     domain.ChainConfig
	Version   domain.Version
	CreateLog *contracts.SplitEvent
	UpdateLog *contracts.SplitEvent
	// Controller is the controller read from chain, zero when immutable
	Controller common.Address
	// Paused is the paused flag read from a v2 wallet
	Paused bool
	// Direction is used for v2 splits whose creation log was not located
	Direction domain.Direction
	// CreateBlock is used when the creation log was not located
	CreateBlock *uint64
}

// BuildSplit reconstructs the split state from its located events. The update
// event, when present, supplies the recipients and the distributor fee; the
// creation event supplies the creation block and the v2 direction.
func BuildSplit(in BuildInput) (*domain.Split, error) {
	source := in.UpdateLog
	if source == nil {
		source = in.CreateLog
	}
	if source == nil {
		return nil, domain.ErrMissingLogs
	}

	split := &domain.Split{
		Address:         in.Address,
		Chain:           in.Chain.Chain,
		Family:          in.Version.Family(),
		Version:         in.Version,
		TotalAllocation: new(big.Int).Set(source.TotalAllocation),
	}

	switch in.Version {
	case domain.VersionV1:
	case domain.VersionV2, domain.VersionV21, domain.VersionV22:
		split.Paused = in.Paused
		split.Direction = in.Direction
		if in.CreateLog != nil {
			if direction, ok := in.Chain.DirectionOf(in.Version, in.CreateLog.Emitter); ok {
				split.Direction = direction
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownVersion, in.Version)
	}

	if in.Controller != (common.Address{}) {
		controller := in.Controller
		split.Controller = &controller
	}

	recipients, err := buildRecipients(source)
	if err != nil {
		return nil, err
	}
	split.Recipients = recipients
	split.DistributorFeePercent = domain.PercentOf(source.DistributorFee, contracts.PercentageScale)

	switch {
	case in.CreateLog != nil:
		split.CreateBlock = in.CreateLog.BlockNumber
	case in.CreateBlock != nil:
		split.CreateBlock = *in.CreateBlock
	}
	split.UpdateBlock = split.CreateBlock
	if in.UpdateLog != nil {
		split.UpdateBlock = in.UpdateLog.BlockNumber
	}

	return split, nil
}

// buildRecipients derives the recipients of the event and checks that their
// units add up to the total allocation the event declares
func buildRecipients(event *contracts.SplitEvent) ([]domain.Recipient, error) {
	if event.TotalAllocation == nil || event.TotalAllocation.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s event declares no total allocation", domain.ErrInvalidAllocation, event.Kind)
	}

	sum := new(big.Int)
	recipients := make([]domain.Recipient, len(event.Recipients))
	for i, account := range event.Recipients {
		units := new(big.Int).Set(event.Allocations[i])
		sum.Add(sum, units)
		recipients[i] = domain.Recipient{
			Address:           account,
			OwnershipUnits:    units,
			PercentAllocation: domain.PercentOf(units, event.TotalAllocation),
		}
	}

	if sum.Cmp(event.TotalAllocation) != 0 {
		return nil, fmt.Errorf("%w: units sum to %s, %s event declares %s",
			domain.ErrInvalidAllocation, sum, event.Kind, event.TotalAllocation)
	}
	return recipients, nil
}

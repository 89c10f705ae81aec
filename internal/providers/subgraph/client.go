// Package subgraph resolves splits from a Splits subgraph, the indexed
// alternative to walking node history.
package subgraph

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
)

// PercentageScale is the denominator of subgraph distributor fees
const PercentageScale = 1_000_000

const splitQuery = `query GetSplit($id: ID!) {
	split(id: $id) {
		id
		type
		version
		controller
		distributorFee
		distributeDirection
		distributionsPaused
		totalOwnership
		createdBlock
		latestBlock
		recipients {
			account {
				id
			}
			ownership
		}
	}
}`

// GraphQLRequest represents a GraphQL request
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// Recipient is a split recipient as indexed by the subgraph
type Recipient struct {
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
	Ownership string `json:"ownership"`
}

// Split is a split entity as indexed by the subgraph. Numeric fields are
// decimal strings.
type Split struct {
	ID                  string      `json:"id"`
	Type                string      `json:"type"`    // "split" or "splitV2"
	Version             string      `json:"version"` // v2 only: "2", "2.1" or "2.2"
	Controller          string      `json:"controller"`
	DistributorFee      string      `json:"distributorFee"`
	DistributeDirection string      `json:"distributeDirection"`
	DistributionsPaused bool        `json:"distributionsPaused"`
	TotalOwnership      string      `json:"totalOwnership"`
	CreatedBlock        string      `json:"createdBlock"`
	LatestBlock         string      `json:"latestBlock"`
	Recipients          []Recipient `json:"recipients"`
}

// GraphQLResponse represents a GraphQL response
type GraphQLResponse struct {
	Data struct {
		Split *Split `json:"split"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client resolves splits from per-chain subgraph endpoints
type Client struct {
	httpClient adapter.HTTPClient
	json       adapter.JSON
	urls       map[domain.Chain]string
}

// NewClient creates a subgraph client. Chains without an url are not indexed.
func NewClient(httpClient adapter.HTTPClient, json adapter.JSON, urls map[domain.Chain]string) *Client {
	return &Client{
		httpClient: httpClient,
		json:       json,
		urls:       urls,
	}
}

// GetSplit fetches the split at address from the subgraph of chain
func (c *Client) GetSplit(ctx context.Context, chain domain.Chain, address common.Address) (*domain.Split, error) {
	url, ok := c.urls[chain]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: no subgraph for %s", domain.ErrUnsupportedChain, chain)
	}

	request := GraphQLRequest{
		Query: splitQuery,
		Variables: map[string]interface{}{
			"id": strings.ToLower(address.Hex()),
		},
	}

	requestBody, err := c.json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}
	respBody, err := c.httpClient.PostBytes(ctx, url, headers, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to call subgraph: %w", err)
	}

	var response GraphQLResponse
	if err := c.json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal GraphQL response: %w", err)
	}

	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL errors: %s", response.Errors[0].Message)
	}

	if response.Data.Split == nil {
		return nil, fmt.Errorf("%w: %s not indexed on %s", domain.ErrSplitNotFound, address.Hex(), chain)
	}

	split, err := toDomainSplit(chain, address, response.Data.Split)
	if err != nil {
		return nil, err
	}

	logger.DebugCtx(ctx, "Resolved split from subgraph",
		zap.String("address", address.Hex()),
		zap.String("chain", string(chain)),
		zap.String("version", string(split.Version)))

	return split, nil
}

func toDomainSplit(chain domain.Chain, address common.Address, s *Split) (*domain.Split, error) {
	split := &domain.Split{
		Address: address,
		Chain:   chain,
		Paused:  s.DistributionsPaused,
	}

	switch s.Type {
	case "split":
		split.Family = domain.FamilyV1
		split.Version = domain.VersionV1
	case "splitV2":
		version, err := domain.ParseV2Version(s.Version)
		if err != nil {
			return nil, err
		}
		split.Family = domain.FamilyV2
		split.Version = version
		switch domain.Direction(s.DistributeDirection) {
		case domain.DirectionPull, domain.DirectionPush:
			split.Direction = domain.Direction(s.DistributeDirection)
		default:
			return nil, fmt.Errorf("unknown distribute direction %q", s.DistributeDirection)
		}
	default:
		return nil, fmt.Errorf("unknown split type %q", s.Type)
	}

	if common.IsHexAddress(s.Controller) {
		controller := common.HexToAddress(s.Controller)
		if controller != (common.Address{}) {
			split.Controller = &controller
		}
	}

	var err error
	if split.CreateBlock, err = parseBlock(s.CreatedBlock); err != nil {
		return nil, err
	}
	if split.UpdateBlock, err = parseBlock(s.LatestBlock); err != nil {
		return nil, err
	}
	if split.UpdateBlock < split.CreateBlock {
		split.UpdateBlock = split.CreateBlock
	}

	fee, err := parseBig(s.DistributorFee)
	if err != nil {
		return nil, fmt.Errorf("invalid distributor fee: %w", err)
	}
	split.DistributorFeePercent = domain.PercentOf(fee, big.NewInt(PercentageScale))

	total, err := parseBig(s.TotalOwnership)
	if err != nil {
		return nil, fmt.Errorf("invalid total ownership: %w", err)
	}
	if total.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero total ownership", domain.ErrInvalidAllocation)
	}
	split.TotalAllocation = total

	sum := new(big.Int)
	for _, r := range s.Recipients {
		if !common.IsHexAddress(r.Account.ID) {
			return nil, fmt.Errorf("invalid recipient %q", r.Account.ID)
		}
		units, err := parseBig(r.Ownership)
		if err != nil {
			return nil, fmt.Errorf("invalid ownership of %s: %w", r.Account.ID, err)
		}
		sum.Add(sum, units)
		split.Recipients = append(split.Recipients, domain.Recipient{
			Address:           common.HexToAddress(r.Account.ID),
			OwnershipUnits:    units,
			PercentAllocation: domain.PercentOf(units, total),
		})
	}
	if sum.Cmp(total) != 0 {
		return nil, fmt.Errorf("%w: recipient units sum to %s, expected %s", domain.ErrInvalidAllocation, sum, total)
	}

	return split, nil
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("not a non-negative integer: %q", s)
	}
	return v, nil
}

func parseBlock(s string) (uint64, error) {
	v, err := parseBig(s)
	if err != nil || !v.IsUint64() {
		return 0, fmt.Errorf("invalid block number %q", s)
	}
	return v.Uint64(), nil
}

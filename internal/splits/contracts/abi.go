// Package contracts binds the split contracts: event schemas, log decoding and
// the read-only calls used to identify and inspect a split.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// splitMainV1JSON covers the v1 SplitMain events and views
const splitMainV1JSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"split","type":"address"},{"indexed":false,"name":"accounts","type":"address[]"},{"indexed":false,"name":"percentAllocations","type":"uint32[]"},{"indexed":false,"name":"distributorFee","type":"uint32"},{"indexed":false,"name":"controller","type":"address"}],"name":"CreateSplit","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"split","type":"address"},{"indexed":false,"name":"accounts","type":"address[]"},{"indexed":false,"name":"percentAllocations","type":"uint32[]"},{"indexed":false,"name":"distributorFee","type":"uint32"}],"name":"UpdateSplit","type":"event"},
	{"inputs":[{"name":"split","type":"address"}],"name":"getHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"split","type":"address"}],"name":"getController","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const splitParamsTuple = `{"components":[{"name":"recipients","type":"address[]"},{"name":"allocations","type":"uint256[]"},{"name":"totalAllocation","type":"uint256"},{"name":"distributionIncentive","type":"uint16"}],"name":"splitParams","type":"tuple"}`

// splitFactoryV2JSON is the v2.0 factory, whose creation event carries no salt
const splitFactoryV2JSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"split","type":"address"},` + splitParamsTuple + `,{"indexed":false,"name":"owner","type":"address"},{"indexed":false,"name":"creator","type":"address"}],"name":"SplitCreated","type":"event"}
]`

// splitFactoryV21JSON is the v2.1 and v2.2 factory, whose creation event carries the salt
const splitFactoryV21JSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"split","type":"address"},` + splitParamsTuple + `,{"indexed":false,"name":"owner","type":"address"},{"indexed":false,"name":"creator","type":"address"},{"indexed":false,"name":"salt","type":"bytes32"}],"name":"SplitCreated","type":"event"}
]`

// splitWalletV2JSON covers the v2 split wallet events and views shared by every sub-version
const splitWalletV2JSON = `[
	{"anonymous":false,"inputs":[{"components":[{"name":"recipients","type":"address[]"},{"name":"allocations","type":"uint256[]"},{"name":"totalAllocation","type":"uint256"},{"name":"distributionIncentive","type":"uint16"}],"indexed":false,"name":"_split","type":"tuple"}],"name":"SplitUpdated","type":"event"},
	{"inputs":[],"name":"splitHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"owner","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"paused","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"FACTORY","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"eip712Domain","outputs":[{"name":"fields","type":"bytes1"},{"name":"name","type":"string"},{"name":"version","type":"string"},{"name":"chainId","type":"uint256"},{"name":"verifyingContract","type":"address"},{"name":"salt","type":"bytes32"},{"name":"extensions","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

var (
	// SplitMainV1ABI is the parsed v1 SplitMain ABI
	SplitMainV1ABI = mustParse(splitMainV1JSON)

	// SplitFactoryV2ABI is the parsed v2.0 factory ABI
	SplitFactoryV2ABI = mustParse(splitFactoryV2JSON)

	// SplitFactoryV21ABI is the parsed v2.1/v2.2 factory ABI
	SplitFactoryV21ABI = mustParse(splitFactoryV21JSON)

	// SplitWalletV2ABI is the parsed v2 split wallet ABI
	SplitWalletV2ABI = mustParse(splitWalletV2JSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contracts: invalid ABI: " + err.Error())
	}
	return parsed
}

// Package splitstest provides an in-memory chain node and log builders for
// exercising split resolution end to end without a network.
package splitstest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/feral-file/ff-splits/internal/splits/contracts"
)

var (
	// ErrReverted is what the node answers for calls the callee does not implement
	ErrReverted = errors.New("execution reverted")

	// ErrRangeTooLarge is what the node answers for log queries over its range limit
	ErrRangeTooLarge = errors.New("query exceeds max block range")

	// ErrUnavailable is the transient failure injected with FailNextLogQueries
	ErrUnavailable = errors.New("503 service unavailable")
)

type splitMainState struct {
	hashes      map[common.Address]common.Hash
	controllers map[common.Address]common.Address
}

type v2SplitState struct {
	hash    common.Hash
	version string
	owner   common.Address
	paused  bool
	factory common.Address
}

// Node is an in-memory chain node. It answers the log queries and contract
// calls the resolver issues and records every log query it receives.
type Node struct {
	mu sync.Mutex

	head       uint64
	maxRange   uint64
	maxResults int
	logs       []types.Log

	splitMains map[common.Address]*splitMainState
	v2Splits   map[common.Address]*v2SplitState
	// plain holds addresses with code that implement none of the split views
	plain map[common.Address]bool

	queries        []ethereum.FilterQuery
	failLogQueries int
	failErr        error
}

// NewNode creates a node whose chain head is at head
func NewNode(head uint64) *Node {
	return &Node{
		head:       head,
		splitMains: make(map[common.Address]*splitMainState),
		v2Splits:   make(map[common.Address]*v2SplitState),
		plain:      make(map[common.Address]bool),
	}
}

// SetMaxRange makes the node reject log queries spanning more than size blocks. Zero disables the limit.
func (n *Node) SetMaxRange(size uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.maxRange = size
}

// SetHead moves the chain head
func (n *Node) SetHead(head uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.head = head
}

// SetMaxResults makes the node refuse log queries matching more than count logs. Zero disables the limit.
func (n *Node) SetMaxResults(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.maxResults = count
}

// FailNextLogQueriesWith makes the next count log queries fail with err
func (n *Node) FailNextLogQueriesWith(count int, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failLogQueries = count
	n.failErr = err
}

// FailNextLogQueries makes the next count log queries fail with ErrUnavailable
func (n *Node) FailNextLogQueries(count int) {
	n.FailNextLogQueriesWith(count, nil)
}

// AddSplitMain deploys a v1 SplitMain at addr
func (n *Node) AddSplitMain(addr common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.splitMains[addr] = &splitMainState{
		hashes:      make(map[common.Address]common.Hash),
		controllers: make(map[common.Address]common.Address),
	}
}

// AddV1Split registers a v1 split with SplitMain. The split wallet itself is
// a contract that implements none of the v2 views.
func (n *Node) AddV1Split(splitMain, split, controller common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	state, ok := n.splitMains[splitMain]
	if !ok {
		panic(fmt.Sprintf("splitstest: no SplitMain at %s", splitMain.Hex()))
	}
	state.hashes[split] = common.BytesToHash(append([]byte("v1"), split.Bytes()...))
	state.controllers[split] = controller
	n.plain[split] = true
}

// SetV1Controller changes the controller SplitMain reports for a v1 split
func (n *Node) SetV1Controller(splitMain, split, controller common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.splitMains[splitMain].controllers[split] = controller
}

// AddV2Split deploys a v2 split wallet reporting the given EIP-712 version string
func (n *Node) AddV2Split(split common.Address, version string, owner, factory common.Address, paused bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.v2Splits[split] = &v2SplitState{
		hash:    common.BytesToHash(append([]byte("v2"), split.Bytes()...)),
		version: version,
		owner:   owner,
		paused:  paused,
		factory: factory,
	}
}

// SetV2Owner transfers ownership of a v2 split wallet
func (n *Node) SetV2Owner(split, owner common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.v2Splits[split].owner = owner
}

// AddLogs appends logs to the chain history
func (n *Node) AddLogs(logs ...types.Log) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, logs...)
}

// LogQueries returns the number of log queries received so far
func (n *Node) LogQueries() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queries)
}

// Queries returns a copy of every log query received so far
func (n *Node) Queries() []ethereum.FilterQuery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ethereum.FilterQuery(nil), n.queries...)
}

// ResetQueries forgets the recorded log queries
func (n *Node) ResetQueries() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queries = nil
}

// FilterLogs returns the logs matching the query, ordered by block and log index
func (n *Node) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.queries = append(n.queries, query)

	if n.failLogQueries > 0 {
		n.failLogQueries--
		if n.failErr != nil {
			return nil, n.failErr
		}
		return nil, ErrUnavailable
	}

	if query.FromBlock == nil || query.ToBlock == nil {
		return nil, errors.New("splitstest: log queries must be bounded")
	}
	from, to := query.FromBlock.Uint64(), query.ToBlock.Uint64()
	if from > to {
		return nil, fmt.Errorf("invalid block range %d-%d", from, to)
	}
	if n.maxRange > 0 && to-from+1 > n.maxRange {
		return nil, ErrRangeTooLarge
	}

	var matched []types.Log
	for _, l := range n.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(query.Addresses) > 0 && !containsAddress(query.Addresses, l.Address) {
			continue
		}
		if !matchTopics(query.Topics, l.Topics) {
			continue
		}
		matched = append(matched, l)
	}
	if n.maxResults > 0 && len(matched) > n.maxResults {
		return nil, fmt.Errorf("query returned more than %d results", n.maxResults)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].BlockNumber != matched[j].BlockNumber {
			return matched[i].BlockNumber < matched[j].BlockNumber
		}
		return matched[i].Index < matched[j].Index
	})
	return matched, nil
}

// HeaderByNumber returns the head header. Only the head is served.
func (n *Node) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if number != nil && number.Uint64() != n.head {
		return nil, fmt.Errorf("splitstest: header %s not available", number)
	}
	return &types.Header{Number: new(big.Int).SetUint64(n.head)}, nil
}

// CallContract executes a split view call against the registered contracts
func (n *Node) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, ErrReverted
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	to := *msg.To
	if state, ok := n.splitMains[to]; ok {
		return callSplitMain(state, msg.Data)
	}
	if state, ok := n.v2Splits[to]; ok {
		return callV2Split(state, msg.Data)
	}
	if n.plain[to] {
		return nil, ErrReverted
	}
	// No code at the address
	return []byte{}, nil
}

// Close is a no-op
func (n *Node) Close() {}

func callSplitMain(state *splitMainState, data []byte) ([]byte, error) {
	method, err := contracts.SplitMainV1ABI.MethodById(data[:4])
	if err != nil {
		return nil, ErrReverted
	}
	split, err := unpackAddressArg(method, data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "getHash":
		return method.Outputs.Pack([32]byte(state.hashes[split]))
	case "getController":
		return method.Outputs.Pack(state.controllers[split])
	}
	return nil, ErrReverted
}

func callV2Split(state *v2SplitState, data []byte) ([]byte, error) {
	method, err := contracts.SplitWalletV2ABI.MethodById(data[:4])
	if err != nil {
		return nil, ErrReverted
	}

	switch method.Name {
	case "splitHash":
		return method.Outputs.Pack([32]byte(state.hash))
	case "owner":
		return method.Outputs.Pack(state.owner)
	case "paused":
		return method.Outputs.Pack(state.paused)
	case "FACTORY":
		return method.Outputs.Pack(state.factory)
	case "eip712Domain":
		return method.Outputs.Pack(
			[1]byte{0x0f},
			"splitWallet",
			state.version,
			big.NewInt(1),
			common.Address{},
			[32]byte{},
			[]*big.Int{},
		)
	}
	return nil, ErrReverted
}

func unpackAddressArg(method *abi.Method, data []byte) (common.Address, error) {
	values, err := method.Inputs.Unpack(data)
	if err != nil || len(values) != 1 {
		return common.Address{}, ErrReverted
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, ErrReverted
	}
	return addr, nil
}

func containsAddress(addrs []common.Address, addr common.Address) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, wanted := range filter {
		if len(wanted) == 0 {
			continue
		}
		found := false
		for _, t := range wanted {
			if topics[i] == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

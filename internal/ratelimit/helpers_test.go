package ratelimit_test

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

func testFilterQuery() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: big.NewInt(1),
		ToBlock:   big.NewInt(100),
		Addresses: []common.Address{common.HexToAddress("0x01")},
	}
}

func testCallMsg() ethereum.CallMsg {
	to := common.HexToAddress("0x01")
	return ethereum.CallMsg{To: &to, Data: []byte{0x01, 0x02, 0x03, 0x04}}
}

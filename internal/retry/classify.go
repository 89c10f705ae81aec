package retry

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// revertCode is the JSON-RPC error code nodes use for reverted calls
const revertCode = 3

// IsReverted reports whether a contract call failed because the callee
// reverted. Reverts are deterministic and are never worth retrying.
func IsReverted(err error) bool {
	if err == nil {
		return false
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "invalid opcode") ||
		strings.Contains(msg, "vm execution error")
}

// tooManyResultsMarkers are the messages nodes use when a log query matched more
// logs than they are willing to return
var tooManyResultsMarkers = []string{
	"query returned more than",
	"too many results",
	"exceeded maximum",
	"query timeout exceeded",
	"response size exceeded",
}

// IsTooManyResults reports whether a log query was refused for the size of its
// result. Retrying the same range cannot succeed; a narrower one may.
func IsTooManyResults(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range tooManyResultsMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

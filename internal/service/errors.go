package service

import (
	"fmt"

	"connectrpc.com/connect"

	"github.com/mmynk/microsplit/internal/ledgererr"
	"github.com/mmynk/microsplit/pkg/api"
)

var codeMapping = map[ledgererr.Code]connect.Code{
	ledgererr.CodeSplitIDTooLong:       connect.CodeInvalidArgument,
	ledgererr.CodeNoParticipants:       connect.CodeInvalidArgument,
	ledgererr.CodeTooManyParticipants:  connect.CodeInvalidArgument,
	ledgererr.CodeInvalidAmount:        connect.CodeInvalidArgument,
	ledgererr.CodeDuplicateParticipant: connect.CodeInvalidArgument,
	ledgererr.CodeAddressMismatch:      connect.CodeInvalidArgument,
	ledgererr.CodeNotAParticipant:      connect.CodeFailedPrecondition,
	ledgererr.CodeAlreadyPaid:          connect.CodeFailedPrecondition,
	ledgererr.CodeNotFullyPaid:         connect.CodeFailedPrecondition,
	ledgererr.CodeInsufficientFunds:    connect.CodeFailedPrecondition,
	ledgererr.CodeBalanceOverflow:      connect.CodeFailedPrecondition,
	ledgererr.CodeUnauthorized:         connect.CodePermissionDenied,
	ledgererr.CodeSplitNotFound:        connect.CodeNotFound,
	ledgererr.CodeSplitExists:          connect.CodeAlreadyExists,
	ledgererr.CodeDecodeError:          connect.CodeDataLoss,
}

// toConnectError maps a ledger error to a Connect error. The ledger code is
// attached as error metadata so clients can branch on it.
func toConnectError(err error) *connect.Error {
	code := ledgererr.CodeOf(err)
	connectCode, ok := codeMapping[code]
	if !ok {
		return connect.NewError(connect.CodeInternal, err)
	}
	connectErr := connect.NewError(connectCode, err)
	connectErr.Meta().Set(api.ErrorHeader, string(code))
	return connectErr
}

func invalidArgument(field string, err error) *connect.Error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s: %w", field, err))
}

package messages

import "strconv"

// PayloadKind identifies the purpose of a MessagePayload.
// Codes are persisted and sent over the wire by other processes, so an
// existing value must never be renumbered or reused.
type PayloadKind int

const (
	// KindSuccess reports a completed operation or a successful authorization.
	KindSuccess PayloadKind = 0
	// KindVerification carries a verification challenge or its answer.
	KindVerification PayloadKind = 1
	// KindRequest asks the receiver to invoke a route.
	KindRequest PayloadKind = 2
	// KindResponse returns the result of a route invocation.
	KindResponse PayloadKind = 3
	// KindError reports that producing a response failed.
	KindError PayloadKind = 4
)

var kindNames = map[PayloadKind]string{
	KindSuccess:      "success",
	KindVerification: "verification",
	KindRequest:      "request",
	KindResponse:     "response",
	KindError:        "error",
}

// String returns the lower-case kind name, or PayloadKind(n) for codes
// outside the known set.
func (k PayloadKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "PayloadKind(" + strconv.Itoa(int(k)) + ")"
}

package messages

import "github.com/google/uuid"

// Data keys used by the verification handshake.
const (
	ChallengeKey = "challenge"
	TokenKey     = "token"
	PeerIDKey    = "id"
	VerifiedKey  = "verified"
)

// NewRequest builds a request for route with fresh id and uuid values.
func NewRequest(route string, data map[string]any) *MessagePayload {
	return NewMessagePayload(
		WithID(uuid.NewString()),
		WithType(KindRequest),
		WithRoute(route),
		WithUUID(uuid.NewString()),
		WithData(data),
	)
}

// Reply turns req into a response carrying data. The id, uuid, route and
// destination of req are kept and any traceback is dropped.
func Reply(req Envelope, data map[string]any) *MessagePayload {
	m := NewMessagePayload().CloneFrom(req)
	m.Type = ptr(KindResponse)
	m.Traceback = nil
	if data == nil {
		data = map[string]any{}
	}
	m.Data = data
	return m
}

// NewVerification issues challenge to the peer identified by destination.
// The challenge doubles as the message uuid.
func NewVerification(challenge, destination string) *MessagePayload {
	return NewMessagePayload(
		WithID(uuid.NewString()),
		WithType(KindVerification),
		WithUUID(challenge),
		WithDestination(destination),
		WithData(map[string]any{ChallengeKey: challenge}),
	)
}

// NewVerificationAnswer answers a challenge with a signed token.
func NewVerificationAnswer(challenge *MessagePayload, token string) *MessagePayload {
	m := NewMessagePayload().CloneFrom(challenge)
	m.Data = map[string]any{TokenKey: token}
	return m
}

// NewSuccess confirms the session of destination.
func NewSuccess(destination string, data map[string]any) *MessagePayload {
	return NewMessagePayload(
		WithID(uuid.NewString()),
		WithType(KindSuccess),
		WithUUID(uuid.NewString()),
		WithDestination(destination),
		WithData(data),
	)
}

// StringData returns data[key] when it holds a string.
func StringData(m *MessagePayload, key string) (string, bool) {
	s, ok := m.Data[key].(string)
	return s, ok
}

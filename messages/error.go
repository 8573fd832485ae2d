package messages

import "fmt"

// RemoteError is a failure reported by the far side in an error payload.
type RemoteError struct {
	Route     string
	UUID      string
	Traceback string
}

func (e *RemoteError) Error() string {
	if e.Route == "" {
		return "remote error: " + e.Traceback
	}
	return fmt.Sprintf("remote error in route %q: %s", e.Route, e.Traceback)
}

// AsRemoteError converts an error payload into a RemoteError. It returns nil
// for payloads of any other kind.
func AsRemoteError(m *MessagePayload) *RemoteError {
	if !m.Classify().IsError() {
		return nil
	}
	return &RemoteError{
		Route:     m.RouteName(),
		UUID:      m.UUIDString(),
		Traceback: deref(m.Traceback),
	}
}

// Fail turns req into an error payload carrying err. The id, uuid, route and
// destination of req are kept so the caller can correlate it.
func Fail(req Envelope, err error) *MessagePayload {
	msg := err.Error()
	m := NewMessagePayload().CloneFrom(req)
	m.Type = ptr(KindError)
	m.Traceback = ptr(msg)
	m.Data = map[string]any{"error": msg}
	return m
}

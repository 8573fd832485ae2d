package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethfduke/ipclink/auth"
	"github.com/sethfduke/ipclink/messages"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrNotVerification is returned when a peer answers the challenge with
	// some other kind of payload.
	ErrNotVerification = errors.New("expected a verification payload")
	// ErrMissingToken is returned when a verification payload carries no token.
	ErrMissingToken = errors.New("verification payload carries no token")
)

// verify runs the verification handshake for a freshly upgraded connection.
// A bearer token presented with the upgrade request is checked directly.
// Without one, and when tokens are required, the peer is sent a challenge
// and must answer with a token signed for it before handshakeTimeout.
// The returned claims are nil for an unverified session.
func (s *IPCServer) verify(c *websocket.Conn, id, bearer string) (*auth.JWTClaims, string, error) {
	if s.jwtValidator == nil {
		if s.requireJWT {
			return nil, "", errors.New("auth required but no validator configured")
		}
		return nil, "", nil
	}

	if bearer != "" {
		claims, err := s.jwtValidator.ParseAndValidate(bearer)
		if err != nil {
			return nil, "", fmt.Errorf("unauthorized: %w", err)
		}
		return claims, bearer, nil
	}

	if !s.requireJWT {
		return nil, "", nil
	}

	challenge := uuid.NewString()
	if err := s.writeDirect(c, messages.NewVerification(challenge, id)); err != nil {
		return nil, "", fmt.Errorf("send challenge: %w", err)
	}

	_ = c.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	defer func() { _ = c.SetReadDeadline(time.Time{}) }()

	_, data, err := c.ReadMessage()
	if err != nil {
		return nil, "", fmt.Errorf("read challenge answer: %w", err)
	}

	var answer messages.MessagePayload
	if err := json.Unmarshal(data, &answer); err != nil {
		return nil, "", fmt.Errorf("decode challenge answer: %w", err)
	}
	s.metrics.Received(&answer)

	if !answer.Classify().IsVerification() {
		return nil, "", ErrNotVerification
	}
	token, ok := messages.StringData(&answer, messages.TokenKey)
	if !ok || token == "" {
		return nil, "", ErrMissingToken
	}

	claims, err := auth.VerifyChallenge(s.jwtValidator, token, challenge)
	if err != nil {
		return nil, "", fmt.Errorf("unauthorized: %w", err)
	}
	return claims, token, nil
}

// reverify replaces the credentials of a live session with the token carried
// by a verification payload.
func (s *IPCServer) reverify(sess *session, p *messages.MessagePayload) {
	peer := sess.peer
	if s.jwtValidator == nil {
		s.send(peer, messages.Fail(p, errors.New("verification is not enabled")))
		return
	}

	token, ok := messages.StringData(p, messages.TokenKey)
	if !ok || token == "" {
		s.send(peer, messages.Fail(p, ErrMissingToken))
		return
	}

	claims, err := s.jwtValidator.ParseAndValidate(token)
	if err != nil {
		s.Log.Warn("re-verification failed", "peer", peer.ID, "err", err)
		s.send(peer, messages.Fail(p, fmt.Errorf("unauthorized: %w", err)))
		return
	}

	sess.ctx = WithClaims(WithToken(sess.ctx, token), claims)
	s.Log.Info("peer re-verified", "peer", peer.ID, "subject", claims.Subject)

	res := messages.NewSuccess(peer.ID, map[string]any{
		messages.PeerIDKey:   peer.ID,
		messages.VerifiedKey: true,
	})
	res.UUID = p.UUID
	s.send(peer, res)
}

// rejectPeer reports a failed handshake to the peer and closes the
// connection.
func (s *IPCServer) rejectPeer(c *websocket.Conn, id string, cause error) {
	defer c.Close()

	_ = s.writeDirect(c, messages.Fail(messages.NewMessagePayload(messages.WithDestination(id)), cause))
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "verification failed"),
		time.Now().Add(time.Second))
}

// writeDirect writes p on c. It is only used before the peer's write pump
// owns the connection.
func (s *IPCServer) writeDirect(c *websocket.Conn, p *messages.MessagePayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_ = c.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	defer func() { _ = c.SetWriteDeadline(time.Time{}) }()
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	s.metrics.Sent(p)
	return nil
}

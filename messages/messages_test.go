package messages

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sethfduke/ipclink/auth"
)

// Test message types for testing
type EchoMsg struct {
	Text string `json:"text"`
	N    int    `json:"n"`
}

type EchoReply struct {
	Text string `json:"text"`
}

func allKinds() []PayloadKind {
	return []PayloadKind{KindSuccess, KindVerification, KindRequest, KindResponse, KindError}
}

func predicates(c TypeClassifier) map[PayloadKind]bool {
	return map[PayloadKind]bool{
		KindSuccess:      c.IsSuccess(),
		KindVerification: c.IsVerification(),
		KindRequest:      c.IsRequest(),
		KindResponse:     c.IsResponse(),
		KindError:        c.IsError(),
	}
}

func TestPayloadKind(t *testing.T) {
	t.Run("codes are stable", func(t *testing.T) {
		want := map[PayloadKind]int{
			KindSuccess:      0,
			KindVerification: 1,
			KindRequest:      2,
			KindResponse:     3,
			KindError:        4,
		}
		for k, code := range want {
			if int(k) != code {
				t.Errorf("expected %s to be %d, got %d", k, code, int(k))
			}
		}
	})

	t.Run("string", func(t *testing.T) {
		if KindRequest.String() != "request" {
			t.Errorf("expected 'request', got %q", KindRequest.String())
		}
		if PayloadKind(99).String() != "PayloadKind(99)" {
			t.Errorf("expected 'PayloadKind(99)', got %q", PayloadKind(99).String())
		}
	})
}

func TestTypeClassifier(t *testing.T) {
	t.Run("exactly one predicate per known kind", func(t *testing.T) {
		for _, k := range allKinds() {
			c := NewTypeClassifier(k)
			for other, got := range predicates(c) {
				if got != (other == k) {
					t.Errorf("classifier for %s: predicate %s returned %v", k, other, got)
				}
			}
			if !c.IsRecognized() {
				t.Errorf("expected %s to be recognized", k)
			}
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		c := NewTypeClassifier(99)
		for k, got := range predicates(c) {
			if got {
				t.Errorf("expected predicate %s to be false for 99", k)
			}
		}
		if c.IsRecognized() {
			t.Error("expected 99 not to be recognized")
		}
		if raw, ok := c.Kind(); !ok || raw != 99 {
			t.Errorf("expected raw kind 99, got %d (set=%v)", raw, ok)
		}
	})

	t.Run("unset kind", func(t *testing.T) {
		c := ClassifierFor(nil)
		for k, got := range predicates(c) {
			if got {
				t.Errorf("expected predicate %s to be false for unset kind", k)
			}
		}
		if c.IsRecognized() {
			t.Error("expected unset kind not to be recognized")
		}
		if c.Label() != "unknown" {
			t.Errorf("expected label 'unknown', got %q", c.Label())
		}
	})

	t.Run("describe", func(t *testing.T) {
		if got := NewTypeClassifier(KindResponse).Describe(); got != "<TypeClassifier: 3>" {
			t.Errorf("expected '<TypeClassifier: 3>', got %q", got)
		}
		if got := ClassifierFor(nil).String(); got != "<TypeClassifier: unset>" {
			t.Errorf("expected '<TypeClassifier: unset>', got %q", got)
		}
	})
}

func TestNewMessagePayload(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		m := NewMessagePayload()

		if m.Data == nil || len(m.Data) != 0 {
			t.Errorf("expected empty data map, got %#v", m.Data)
		}
		if m.ID != nil || m.Type != nil || m.Route != nil || m.Traceback != nil || m.UUID != nil || m.Destination != nil {
			t.Errorf("expected every other field to be unset, got %+v", m)
		}
	})

	t.Run("empty string is not unset", func(t *testing.T) {
		m := NewMessagePayload(WithRoute(""))
		if m.Route == nil {
			t.Fatal("expected route to be set")
		}
		if *m.Route != "" {
			t.Errorf("expected empty route, got %q", *m.Route)
		}
	})

	t.Run("nil data keeps the empty body", func(t *testing.T) {
		m := NewMessagePayload(WithData(nil))
		if m.Data == nil {
			t.Error("expected data to be non-nil")
		}
	})

	t.Run("unknown kinds are accepted", func(t *testing.T) {
		m := NewMessagePayload(WithType(99))
		if m.Type == nil || *m.Type != 99 {
			t.Errorf("expected type 99, got %v", m.Type)
		}
	})
}

func TestToMapping(t *testing.T) {
	t.Run("partial envelope", func(t *testing.T) {
		m := NewMessagePayload(
			WithID("a1"),
			WithType(KindSuccess),
			WithData(map[string]any{"k": "v"}),
		)

		want := Mapping{
			{Key: "id", Value: "a1"},
			{Key: "type", Value: KindSuccess},
			{Key: "route", Value: nil},
			{Key: "data", Value: map[string]any{"k": "v"}},
			{Key: "traceback", Value: nil},
			{Key: "uuid", Value: nil},
			{Key: "destination", Value: nil},
		}
		if diff := cmp.Diff(want, m.ToMapping()); diff != "" {
			t.Errorf("mapping mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("plain map", func(t *testing.T) {
		m := NewMessagePayload(WithID("a1"), WithRoute("r1"))
		got := m.ToMapping().Map()

		if len(got) != 7 {
			t.Errorf("expected 7 keys, got %d", len(got))
		}
		if got["id"] != "a1" || got["route"] != "r1" {
			t.Errorf("unexpected map %v", got)
		}
		if v, ok := got["uuid"]; !ok || v != nil {
			t.Errorf("expected unset uuid to be present as nil, got %v (%v)", v, ok)
		}
	})

	t.Run("key order", func(t *testing.T) {
		want := []string{"id", "type", "route", "data", "traceback", "uuid", "destination"}
		if diff := cmp.Diff(want, NewMessagePayload().ToMapping().Keys()); diff != "" {
			t.Errorf("key order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		m := NewMessagePayload(WithRoute("r1"), WithData(map[string]any{"k": "v"}))

		first := m.ToMapping()
		second := m.ToMapping()
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("expected equal mappings (-first +second):\n%s", diff)
		}

		*m.Route = "r2"
		m.Data["k"] = "changed"
		m.Type = ptr(KindError)

		if v, _ := first.Get("route"); v != "r1" {
			t.Errorf("expected snapshot route 'r1', got %v", v)
		}
		data, _ := first.Get("data")
		if data.(map[string]any)["k"] != "v" {
			t.Errorf("expected snapshot data to be unchanged, got %v", data)
		}
		if v, _ := first.Get("type"); v != nil {
			t.Errorf("expected snapshot type to stay unset, got %v", v)
		}
	})

	t.Run("ordered json", func(t *testing.T) {
		m := NewMessagePayload(WithID("a1"), WithType(KindRequest), WithRoute("ping"))
		b, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}

		want := `{"id":"a1","type":2,"route":"ping","data":{},"traceback":null,"uuid":null,"destination":null}`
		if string(b) != want {
			t.Errorf("expected %s, got %s", want, b)
		}
	})
}

func TestCloneFrom(t *testing.T) {
	full := func() *MessagePayload {
		return NewMessagePayload(
			WithID("id-1"),
			WithType(KindRequest),
			WithRoute("route-1"),
			WithTraceback("tb-1"),
			WithData(map[string]any{"nested": map[string]any{"n": 1}, "list": []any{"a"}}),
			WithUUID("uuid-1"),
			WithDestination("dst-1"),
		)
	}

	t.Run("copies every field", func(t *testing.T) {
		src := full()
		clone := NewMessagePayload().CloneFrom(src)

		if diff := cmp.Diff(src.ToMapping(), clone.ToMapping()); diff != "" {
			t.Errorf("clone mismatch (-src +clone):\n%s", diff)
		}
	})

	t.Run("returns the receiver", func(t *testing.T) {
		m := NewMessagePayload()
		if m.CloneFrom(full()) != m {
			t.Error("expected CloneFrom to return its receiver")
		}
	})

	t.Run("source mutation does not leak", func(t *testing.T) {
		src := full()
		clone := NewMessagePayload().CloneFrom(src)

		*src.ID = "changed"
		*src.Type = KindError
		*src.Route = "changed"
		*src.Traceback = "changed"
		*src.UUID = "changed"
		*src.Destination = "changed"
		src.Data["extra"] = true
		src.Data["nested"].(map[string]any)["n"] = 2
		src.Data["list"].([]any)[0] = "b"

		if diff := cmp.Diff(full().ToMapping(), clone.ToMapping()); diff != "" {
			t.Errorf("clone changed after source mutation (-want +got):\n%s", diff)
		}
	})

	t.Run("unset source fields overwrite", func(t *testing.T) {
		m := full()
		m.CloneFrom(NewMessagePayload(WithID("only")))

		if m.ID == nil || *m.ID != "only" {
			t.Errorf("expected id 'only', got %v", m.ID)
		}
		if m.Type != nil || m.Route != nil || m.Traceback != nil || m.UUID != nil || m.Destination != nil {
			t.Errorf("expected other fields to become unset, got %+v", m)
		}
		if m.Data == nil || len(m.Data) != 0 {
			t.Errorf("expected empty data, got %v", m.Data)
		}
	})

	t.Run("any envelope shaped source", func(t *testing.T) {
		src := foreignEnvelope{route: "r", data: nil}
		m := NewMessagePayload().CloneFrom(src)

		if m.RouteName() != "r" {
			t.Errorf("expected route 'r', got %q", m.RouteName())
		}
		if m.Data == nil {
			t.Error("expected nil source data to become an empty map")
		}
	})

	t.Run("nil source resets", func(t *testing.T) {
		m := full().CloneFrom(nil)
		if m.ID != nil || m.Type != nil || len(m.Data) != 0 || m.Data == nil {
			t.Errorf("expected reset envelope, got %+v", m)
		}
	})
}

type foreignEnvelope struct {
	route string
	data  map[string]any
}

func (f foreignEnvelope) GetID() *string          { return nil }
func (f foreignEnvelope) GetType() *PayloadKind   { return nil }
func (f foreignEnvelope) GetRoute() *string       { return &f.route }
func (f foreignEnvelope) GetTraceback() *string   { return nil }
func (f foreignEnvelope) GetData() map[string]any { return f.data }
func (f foreignEnvelope) GetUUID() *string        { return nil }
func (f foreignEnvelope) GetDestination() *string { return nil }

func TestRoundTrip(t *testing.T) {
	envelopes := map[string]*MessagePayload{
		"empty": NewMessagePayload(),
		"full": NewMessagePayload(
			WithID("a1"), WithType(KindResponse), WithRoute("r"), WithTraceback(""),
			WithData(map[string]any{"k": "v"}), WithUUID("u"), WithDestination("d"),
		),
		"unknown kind": NewMessagePayload(WithType(42)),
	}

	for name, m := range envelopes {
		t.Run(name+" via mapping", func(t *testing.T) {
			back := FromMapping(m.ToMapping())
			if diff := cmp.Diff(m, back); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run(name+" via json", func(t *testing.T) {
			b, err := json.Marshal(m)
			if err != nil {
				t.Fatalf("failed to marshal: %v", err)
			}
			var back MessagePayload
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if diff := cmp.Diff(m.ToMapping().Keys(), back.ToMapping().Keys()); diff != "" {
				t.Errorf("key mismatch:\n%s", diff)
			}
			if diff := cmp.Diff(string(b), string(mustMarshal(t, &back))); diff != "" {
				t.Errorf("json round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return b
}

func TestUnmarshalPayload(t *testing.T) {
	t.Run("missing fields are unset", func(t *testing.T) {
		var m MessagePayload
		if err := json.Unmarshal([]byte(`{"type": 2, "route": "ping"}`), &m); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if !m.Classify().IsRequest() {
			t.Errorf("expected a request, got %s", m.Classify())
		}
		if m.ID != nil || m.UUID != nil {
			t.Errorf("expected id and uuid to be unset, got %v %v", m.ID, m.UUID)
		}
		if m.Data == nil {
			t.Error("expected data to default to an empty map")
		}
	})

	t.Run("numeric identifiers", func(t *testing.T) {
		var m MessagePayload
		if err := json.Unmarshal([]byte(`{"id": 7, "uuid": 12345678901234567890}`), &m); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if m.ID == nil || *m.ID != "7" {
			t.Errorf("expected id '7', got %v", m.ID)
		}
		if m.UUIDString() != "12345678901234567890" {
			t.Errorf("expected uuid to keep every digit, got %q", m.UUIDString())
		}
	})

	t.Run("integral float type", func(t *testing.T) {
		for _, tt := range []struct {
			body string
			want *PayloadKind
		}{
			{`{"type": 2.0}`, ptr(KindRequest)},
			{`{"type": 4e0}`, ptr(KindError)},
			{`{"type": 2.5}`, nil},
		} {
			var m MessagePayload
			if err := json.Unmarshal([]byte(tt.body), &m); err != nil {
				t.Fatalf("failed to unmarshal %s: %v", tt.body, err)
			}
			if diff := cmp.Diff(tt.want, m.Type); diff != "" {
				t.Errorf("%s: type mismatch (-want +got):\n%s", tt.body, diff)
			}
		}

		fromMap := FromMapping(Mapping{{Key: KeyType, Value: float64(2)}})
		var fromJSON MessagePayload
		_ = json.Unmarshal([]byte(`{"type": 2.0}`), &fromJSON)
		if fromMap.Classify() != fromJSON.Classify() {
			t.Errorf("expected json and mapping to agree, got %s and %s", fromJSON.Classify(), fromMap.Classify())
		}
	})

	t.Run("wrong shapes are unset", func(t *testing.T) {
		var m MessagePayload
		if err := json.Unmarshal([]byte(`{"type": "request", "route": 3, "data": [1]}`), &m); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if m.Type != nil || m.Route != nil {
			t.Errorf("expected type and route to be unset, got %v %v", m.Type, m.Route)
		}
		if m.Data == nil || len(m.Data) != 0 {
			t.Errorf("expected empty data, got %v", m.Data)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		var m MessagePayload
		if err := json.Unmarshal([]byte(`{"type":`), &m); err == nil {
			t.Error("expected invalid json to fail")
		}
	})

	t.Run("null envelope", func(t *testing.T) {
		var m MessagePayload
		if err := m.UnmarshalJSON([]byte(`null`)); err == nil {
			t.Error("expected null envelope to fail")
		}
	})
}

func TestBuilders(t *testing.T) {
	req := NewRequest("ping", map[string]any{"n": 1})
	req.Destination = ptr("worker-2")

	t.Run("request", func(t *testing.T) {
		if !req.Classify().IsRequest() {
			t.Errorf("expected request, got %s", req.Classify())
		}
		if req.ID == nil || req.UUID == nil {
			t.Error("expected id and uuid to be generated")
		}
		if *req.ID == *req.UUID {
			t.Error("expected id and uuid to differ")
		}
	})

	t.Run("reply keeps correlation", func(t *testing.T) {
		res := Reply(req, map[string]any{"pong": true})

		if !res.Classify().IsResponse() {
			t.Errorf("expected response, got %s", res.Classify())
		}
		if *res.ID != *req.ID || *res.UUID != *req.UUID || res.DestinationID() != "worker-2" {
			t.Errorf("expected id/uuid/destination to be preserved, got %+v", res)
		}
		if !req.Classify().IsRequest() {
			t.Error("expected request to be left untouched")
		}
	})

	t.Run("fail carries traceback", func(t *testing.T) {
		res := Fail(req, errors.New("boom"))

		if !res.Classify().IsError() {
			t.Errorf("expected error, got %s", res.Classify())
		}
		if res.Traceback == nil || *res.Traceback != "boom" {
			t.Errorf("expected traceback 'boom', got %v", res.Traceback)
		}
		remote := AsRemoteError(res)
		if remote == nil {
			t.Fatal("expected a remote error")
		}
		if remote.Route != "ping" || remote.Traceback != "boom" {
			t.Errorf("unexpected remote error %+v", remote)
		}
		if AsRemoteError(req) != nil {
			t.Error("expected no remote error for a request")
		}
	})

	t.Run("verification answer", func(t *testing.T) {
		challenge := NewVerification("nonce", "peer-1")
		answer := NewVerificationAnswer(challenge, "tok")

		if !answer.Classify().IsVerification() {
			t.Errorf("expected verification, got %s", answer.Classify())
		}
		if tok, _ := StringData(answer, TokenKey); tok != "tok" {
			t.Errorf("expected token 'tok', got %q", tok)
		}
		if answer.UUIDString() != "nonce" {
			t.Errorf("expected uuid 'nonce', got %q", answer.UUIDString())
		}
		if c, _ := StringData(challenge, ChallengeKey); c != "nonce" {
			t.Errorf("expected challenge to be left untouched, got %q", c)
		}
	})
}

func TestRoute(t *testing.T) {
	t.Run("typed route", func(t *testing.T) {
		var received *EchoMsg
		spec := Route("echo", func(ctx context.Context, msg *EchoMsg) (any, error) {
			received = msg
			return EchoReply{Text: msg.Text}, nil
		})

		if spec.Name != "echo" {
			t.Errorf("expected name 'echo', got %q", spec.Name)
		}
		if _, ok := spec.Reg.New().(*EchoMsg); !ok {
			t.Errorf("expected *EchoMsg, got %T", spec.Reg.New())
		}

		out, err := spec.Reg.Call(context.Background(), NewRequest("echo", map[string]any{"text": "hi", "n": 3}))
		if err != nil {
			t.Fatalf("call failed: %v", err)
		}
		if received == nil || received.Text != "hi" || received.N != 3 {
			t.Errorf("unexpected decoded message %+v", received)
		}
		if out["text"] != "hi" {
			t.Errorf("expected text 'hi', got %v", out["text"])
		}
	})

	t.Run("raw route", func(t *testing.T) {
		spec := RawRoute("whoami", func(ctx context.Context, req *MessagePayload) (any, error) {
			return req.RouteName(), nil
		})

		out, err := spec.Reg.Call(context.Background(), NewRequest("whoami", nil))
		if err != nil {
			t.Fatalf("call failed: %v", err)
		}
		if out["result"] != "whoami" {
			t.Errorf("expected wrapped result 'whoami', got %v", out)
		}
	})

	t.Run("handler error", func(t *testing.T) {
		spec := Route("fail", func(ctx context.Context, msg *EchoMsg) (any, error) {
			return nil, errors.New("nope")
		})

		if _, err := spec.Reg.Call(context.Background(), NewRequest("fail", nil)); err == nil || err.Error() != "nope" {
			t.Errorf("expected 'nope', got %v", err)
		}
	})

	t.Run("decode error", func(t *testing.T) {
		spec := Route("echo", func(ctx context.Context, msg *EchoMsg) (any, error) { return nil, nil })

		_, err := spec.Reg.Call(context.Background(), NewRequest("echo", map[string]any{"n": "not a number"}))
		if err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("with auth option", func(t *testing.T) {
		spec := Route("secure", func(ctx context.Context, msg *EchoMsg) (any, error) { return nil, nil }, WithAuth())

		if spec.Reg.Auth == nil || !spec.Reg.Auth.Require {
			t.Error("expected auth to be required")
		}
		if spec.Reg.Auth.Validator != nil {
			t.Error("expected validator to be nil (will be set by server)")
		}
	})

	t.Run("with custom validator", func(t *testing.T) {
		validator := &auth.JwtHS256{Secret: []byte("test")}
		spec := Route("secure", func(ctx context.Context, msg *EchoMsg) (any, error) { return nil, nil },
			WithAuth(), WithCustomValidator(validator))

		if spec.Reg.Auth.Validator != validator {
			t.Error("expected custom validator to be set (should override WithAuth)")
		}
	})
}

func TestEncodeData(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want map[string]any
	}{
		{"nil", nil, map[string]any{}},
		{"map", map[string]any{"a": 1}, map[string]any{"a": 1}},
		{"struct", EchoReply{Text: "x"}, map[string]any{"text": "x"}},
		{"scalar", 5, map[string]any{"result": 5}},
		{"slice", []string{"a"}, map[string]any{"result": []string{"a"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeData(tc.in)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("unencodable", func(t *testing.T) {
		if _, err := EncodeData(make(chan int)); err == nil {
			t.Error("expected an error for a channel")
		}
	})
}

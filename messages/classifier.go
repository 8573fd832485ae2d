package messages

import "fmt"

// TypeClassifier is a read-only view over a raw kind value. Callers branch on
// message purpose through its predicates instead of comparing codes inline.
//
// Any value is accepted. A code outside the known set, or an unset kind, makes
// every Is* predicate return false; IsRecognized tells those cases apart from
// a known kind.
type TypeClassifier struct {
	kind PayloadKind
	set  bool
}

// NewTypeClassifier wraps kind.
func NewTypeClassifier(kind PayloadKind) TypeClassifier {
	return TypeClassifier{kind: kind, set: true}
}

// ClassifierFor wraps the kind an envelope carries. A nil kind yields an
// unclassified classifier.
func ClassifierFor(kind *PayloadKind) TypeClassifier {
	if kind == nil {
		return TypeClassifier{}
	}
	return NewTypeClassifier(*kind)
}

func (c TypeClassifier) is(k PayloadKind) bool { return c.set && c.kind == k }

// IsSuccess reports whether the wrapped kind is KindSuccess.
func (c TypeClassifier) IsSuccess() bool { return c.is(KindSuccess) }

// IsVerification reports whether the wrapped kind is KindVerification.
func (c TypeClassifier) IsVerification() bool { return c.is(KindVerification) }

// IsRequest reports whether the wrapped kind is KindRequest.
func (c TypeClassifier) IsRequest() bool { return c.is(KindRequest) }

// IsResponse reports whether the wrapped kind is KindResponse.
func (c TypeClassifier) IsResponse() bool { return c.is(KindResponse) }

// IsError reports whether the wrapped kind is KindError.
func (c TypeClassifier) IsError() bool { return c.is(KindError) }

// IsRecognized reports whether the wrapped kind is one of the known codes.
func (c TypeClassifier) IsRecognized() bool {
	if !c.set {
		return false
	}
	_, ok := kindNames[c.kind]
	return ok
}

// Kind returns the wrapped raw value and whether one was set.
func (c TypeClassifier) Kind() (PayloadKind, bool) { return c.kind, c.set }

// Label is the kind name for recognized kinds and "unknown" otherwise.
// It keeps metric label cardinality bounded.
func (c TypeClassifier) Label() string {
	if !c.IsRecognized() {
		return "unknown"
	}
	return c.kind.String()
}

// Describe renders the classifier for logs, e.g. "<TypeClassifier: 2>".
func (c TypeClassifier) Describe() string {
	if !c.set {
		return "<TypeClassifier: unset>"
	}
	return fmt.Sprintf("<TypeClassifier: %d>", int(c.kind))
}

func (c TypeClassifier) String() string { return c.Describe() }

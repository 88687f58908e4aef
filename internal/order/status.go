package order

import "fmt"

// Well-known status ids referenced by lifecycle rules. The full status set is
// caller-configured; only these four carry built-in semantics (cancel
// eligibility and restitution terminality).
const (
	StatusWaitingPayment = "waiting_payment"
	StatusPaid           = "paid"
	StatusCanceled       = "canceled"
	StatusFailed         = "failed"
	StatusRefunded       = "refunded"
)

// UnknownStatusError reports a status id outside the configured set.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown order status %q", e.Status)
}

// InvalidTransitionError reports a status change the transition table does
// not allow.
type InvalidTransitionError struct {
	From, To string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// StatusSet is the configured set of order status ids plus the allowed
// transitions between them. It is external configuration data loaded at
// startup, validated centrally here instead of trusted to each call site.
type StatusSet struct {
	ids         []string
	known       map[string]struct{}
	transitions map[string]map[string]struct{}
}

// NewStatusSet builds a StatusSet from the ordered status ids and the
// allowed-transitions table. Transition entries naming unknown statuses are
// rejected.
func NewStatusSet(ids []string, transitions map[string][]string) (*StatusSet, error) {
	s := &StatusSet{
		ids:         ids,
		known:       make(map[string]struct{}, len(ids)),
		transitions: make(map[string]map[string]struct{}, len(transitions)),
	}
	for _, id := range ids {
		s.known[id] = struct{}{}
	}
	for from, tos := range transitions {
		if _, ok := s.known[from]; !ok {
			return nil, &UnknownStatusError{Status: from}
		}
		set := make(map[string]struct{}, len(tos))
		for _, to := range tos {
			if _, ok := s.known[to]; !ok {
				return nil, &UnknownStatusError{Status: to}
			}
			set[to] = struct{}{}
		}
		s.transitions[from] = set
	}
	return s, nil
}

// DefaultStatusSet returns the stock status configuration used when no
// external one is provided.
func DefaultStatusSet() *StatusSet {
	s, err := NewStatusSet(
		[]string{
			StatusWaitingPayment, StatusPaid, "sourcing", "purchased",
			"waiting_delivery", "delivered", StatusFailed, StatusCanceled,
			"waiting_refund", StatusRefunded,
		},
		map[string][]string{
			StatusWaitingPayment: {StatusPaid, StatusCanceled, StatusFailed},
			StatusPaid:           {"sourcing", StatusCanceled, "waiting_refund"},
			"sourcing":           {"purchased", StatusFailed},
			"purchased":          {"waiting_delivery", StatusFailed},
			"waiting_delivery":   {"delivered", StatusFailed},
			"delivered":          {"waiting_refund"},
			"waiting_refund":     {StatusRefunded},
		},
	)
	if err != nil {
		panic(err) // static configuration above is known-valid
	}
	return s
}

// IDs returns the configured status ids in order.
func (s *StatusSet) IDs() []string {
	return s.ids
}

// Contains reports whether id is a configured status.
func (s *StatusSet) Contains(id string) bool {
	_, ok := s.known[id]
	return ok
}

// Validate checks a proposed status change against the transition table. A
// no-op change (from == to) is always allowed.
func (s *StatusSet) Validate(from, to string) error {
	if !s.Contains(to) {
		return &UnknownStatusError{Status: to}
	}
	if from == to {
		return nil
	}
	if _, ok := s.transitions[from][to]; !ok {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

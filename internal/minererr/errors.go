// Package minererr defines the error kinds the mining engine and its
// collaborators use to signal failure, per the recovery table in spec.md §7.
package minererr

import "errors"

// Kind identifies which row of the error-handling table an error belongs to.
type Kind int

const (
	// KindTemplate marks a malformed or incomplete RPC block template.
	KindTemplate Kind = iota
	// KindInit marks a RandomX cache/dataset/VM allocation failure.
	KindInit
	// KindResize marks a thread-count change that failed mid-rebuild.
	KindResize
	// KindSeedUpdate marks a seed re-key failure.
	KindSeedUpdate
	// KindRPC marks a network/parse/auth failure talking to the node.
	KindRPC
	// KindSubmissionRejected marks a submitblock call the node refused.
	KindSubmissionRejected
)

func (k Kind) String() string {
	switch k {
	case KindTemplate:
		return "template"
	case KindInit:
		return "init"
	case KindResize:
		return "resize"
	case KindSeedUpdate:
		return "seed_update"
	case KindRPC:
		return "rpc"
	case KindSubmissionRejected:
		return "submission_rejected"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the Kind used to decide recovery.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Op
	}
	return e.Kind.String() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for the given kind, operation name, and cause.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a minererr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

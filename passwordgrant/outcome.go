package passwordgrant

import "fmt"

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeError OutcomeKind = iota
	OutcomeSuccess
	OutcomeFail
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFail:
		return "fail"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the final result of one authentication attempt.
//
//   - OutcomeSuccess: User is non-nil, Info is optional.
//   - OutcomeFail: the verifier rejected the attempt; Info may explain why.
//   - OutcomeError: Err is set. Token endpoint and profile failures always
//     land here, never in OutcomeFail.
type Outcome struct {
	Kind OutcomeKind
	User any
	Info any
	Err  error
}

func successOutcome(user, info any) Outcome {
	return Outcome{Kind: OutcomeSuccess, User: user, Info: info}
}

func failOutcome(info any) Outcome {
	return Outcome{Kind: OutcomeFail, Info: info}
}

func errorOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}

// Reporter is the success/fail/error surface of an enclosing authentication
// framework.
type Reporter interface {
	Success(user, info any)
	Fail(info any)
	Error(err error)
}

// Report calls exactly one Reporter method for o.
func (o Outcome) Report(r Reporter) {
	switch o.Kind {
	case OutcomeSuccess:
		r.Success(o.User, o.Info)
	case OutcomeFail:
		r.Fail(o.Info)
	default:
		r.Error(o.Err)
	}
}

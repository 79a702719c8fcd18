package entities

import "fmt"

// ValidationErrorCode enumerates deterministic local rejection reasons.
type ValidationErrorCode int

const (
	ErrMissingOutputs ValidationErrorCode = iota
	ErrZeroOutputValue
	ErrDuplicateInput
	ErrWitnessCountMismatch
	ErrEmptyWitness
)

func (c ValidationErrorCode) String() string {
	switch c {
	case ErrMissingOutputs:
		return "missing outputs"
	case ErrZeroOutputValue:
		return "output with zero value"
	case ErrDuplicateInput:
		return "duplicate input"
	case ErrWitnessCountMismatch:
		return "witness count does not match input count"
	case ErrEmptyWitness:
		return "empty witness"
	default:
		return "unknown validation error"
	}
}

// ValidationError is a static validation failure. It is returned to the
// submitting client, not treated as an infrastructure error.
type ValidationError struct {
	Code ValidationErrorCode `json:"code"`
	Idx  *uint64             `json:"idx,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Idx != nil {
		return fmt.Sprintf("%s (index %d)", e.Code, *e.Idx)
	}
	return e.Code.String()
}

// CheckTx statically validates a full transaction. A transaction with no
// inputs is a mint and only needs well-formed outputs. Witness programs are
// not executed here; sentinels check shape, the coordinator checks state.
func CheckTx(tx FullTx) *ValidationError {
	if len(tx.Outputs) == 0 {
		return &ValidationError{Code: ErrMissingOutputs}
	}
	for i, out := range tx.Outputs {
		if out.Value == 0 {
			idx := uint64(i)
			return &ValidationError{Code: ErrZeroOutputValue, Idx: &idx}
		}
	}
	if len(tx.Inputs) == 0 {
		// Mint transaction.
		return nil
	}
	seen := make(map[OutPoint]bool, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if seen[in.Prevout] {
			idx := uint64(i)
			return &ValidationError{Code: ErrDuplicateInput, Idx: &idx}
		}
		seen[in.Prevout] = true
	}
	if len(tx.Witnesses) != len(tx.Inputs) {
		return &ValidationError{Code: ErrWitnessCountMismatch}
	}
	for i, w := range tx.Witnesses {
		if len(w) == 0 {
			idx := uint64(i)
			return &ValidationError{Code: ErrEmptyWitness, Idx: &idx}
		}
	}
	return nil
}

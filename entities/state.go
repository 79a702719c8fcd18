package entities

// TxState is the archived lifecycle state of a transaction. The ordinal is
// part of the archive key schema and must not change.
type TxState int

const (
	// StateInitial is set when a transaction is first observed.
	StateInitial TxState = iota
	// StateValidated is set once the attestation threshold is reached.
	StateValidated
	// StateExecution is set when the transaction is handed to the coordinator.
	StateExecution
	// StateCompleted is set when the coordinator confirms execution.
	StateCompleted
	// StateUnknown is set when the coordinator returns no result.
	StateUnknown
	// StateValidationFailed is set when local or peer validation rejects.
	StateValidationFailed
	// StateExecutionFailed is set when the coordinator rejects execution.
	StateExecutionFailed
)

// StatePriority lists states from highest to lowest priority. A lookup
// returns the highest-priority status record present for a transaction.
var StatePriority = []TxState{
	StateCompleted,
	StateExecutionFailed,
	StateValidationFailed,
	StateExecution,
	StateValidated,
	StateUnknown,
	StateInitial,
}

func (s TxState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateValidated:
		return "validated"
	case StateExecution:
		return "execution"
	case StateCompleted:
		return "completed"
	case StateUnknown:
		return "unknown"
	case StateValidationFailed:
		return "validation_failed"
	case StateExecutionFailed:
		return "execution_failed"
	default:
		return ""
	}
}

// TxStatus is the outcome reported to the submitting client.
type TxStatus int

const (
	// StatusConfirmed means the coordinator applied the transaction.
	StatusConfirmed TxStatus = iota
	// StatusStateInvalid means the coordinator found conflicting state.
	StatusStateInvalid
	// StatusStaticInvalid means local validation rejected the transaction.
	StatusStaticInvalid
)

func (s TxStatus) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusStateInvalid:
		return "state_invalid"
	case StatusStaticInvalid:
		return "static_invalid"
	default:
		return ""
	}
}

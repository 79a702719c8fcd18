package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTx(t *testing.T) {
	idx := func(i uint64) *uint64 { return &i }

	tests := []struct {
		name    string
		mutate  func(tx *FullTx)
		wantErr *ValidationError
	}{
		{
			name:   "valid transfer",
			mutate: func(tx *FullTx) {},
		},
		{
			name: "mint with no inputs",
			mutate: func(tx *FullTx) {
				tx.Inputs = nil
				tx.Witnesses = nil
			},
		},
		{
			name: "no outputs",
			mutate: func(tx *FullTx) {
				tx.Outputs = nil
			},
			wantErr: &ValidationError{Code: ErrMissingOutputs},
		},
		{
			name: "zero value output",
			mutate: func(tx *FullTx) {
				tx.Outputs[1].Value = 0
			},
			wantErr: &ValidationError{Code: ErrZeroOutputValue, Idx: idx(1)},
		},
		{
			name: "duplicate input",
			mutate: func(tx *FullTx) {
				tx.Inputs = append(tx.Inputs, tx.Inputs[0])
				tx.Witnesses = append(tx.Witnesses, tx.Witnesses[0])
			},
			wantErr: &ValidationError{Code: ErrDuplicateInput, Idx: idx(1)},
		},
		{
			name: "witness count mismatch",
			mutate: func(tx *FullTx) {
				tx.Witnesses = nil
			},
			wantErr: &ValidationError{Code: ErrWitnessCountMismatch},
		},
		{
			name: "empty witness",
			mutate: func(tx *FullTx) {
				tx.Witnesses[0] = Witness{}
			},
			wantErr: &ValidationError{Code: ErrEmptyWitness, Idx: idx(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTx()
			tt.mutate(&tx)
			got := CheckTx(tx)
			if tt.wantErr == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.wantErr, *got)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	i := uint64(3)
	assert.Equal(t, "missing outputs", ValidationError{Code: ErrMissingOutputs}.Error())
	assert.Equal(t, "empty witness (index 3)", ValidationError{Code: ErrEmptyWitness, Idx: &i}.Error())
}

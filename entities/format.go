package entities

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// FormatTimestamp renders a millisecond epoch timestamp as a local date
// string with millisecond precision.
func FormatTimestamp(ms uint64) string {
	t := time.UnixMilli(int64(ms))
	return fmt.Sprintf("%s.%03d", t.Format("2006-01-02 15:04:05"), ms%1000)
}

// FormatTx renders a transaction with its archived state and timestamp in a
// human readable form, used by the archive reader tool.
func FormatTx(tx FullTx, state TxState, timestamp uint64) string {
	var sb strings.Builder
	txID := TxID(tx)
	fmt.Fprintf(&sb, "Transaction: 0x%s | Status: %s | Timestamp: %s\n",
		txID.String(), state, FormatTimestamp(timestamp))

	fmt.Fprintf(&sb, "\tInputs (%d):\n", len(tx.Inputs))
	for i, in := range tx.Inputs {
		if len(tx.Inputs) > 1 {
			fmt.Fprintf(&sb, "\t\t--- %d ---\n", i+1)
		}
		fmt.Fprintf(&sb, "\t\tOutPoint:\tTX Id: 0x%s\tIndex: %d\n",
			in.Prevout.TxID.String(), in.Prevout.Index)
		fmt.Fprintf(&sb, "\t\tOutput:\tWitness program commitment: 0x%s\tValue: %d\n",
			in.PrevoutData.WitnessProgramCommitment.String(), in.PrevoutData.Value)
	}

	fmt.Fprintf(&sb, "\tOutputs (%d):\n", len(tx.Outputs))
	for i, out := range tx.Outputs {
		if len(tx.Outputs) > 1 {
			fmt.Fprintf(&sb, "\t\t--- %d ---\n", i+1)
		}
		fmt.Fprintf(&sb, "\t\tWitness program commitment: 0x%s\tValue: %d\n",
			out.WitnessProgramCommitment.String(), out.Value)
	}

	fmt.Fprintf(&sb, "\tWitnesses (%d):\n", len(tx.Witnesses))
	for i, w := range tx.Witnesses {
		fmt.Fprintf(&sb, "\t\t%d: 0x%s\n", i+1, hex.EncodeToString(w))
	}
	return sb.String()
}

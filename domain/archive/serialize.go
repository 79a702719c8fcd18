package archive

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/openuhs/go-sentinel/entities"
)

// Body records are length-prefixed little-endian:
//
//	u64 timestamp_ms
//	u64 n_inputs,    n_inputs    x (32B tx_id, u64 index, 32B wpc, u64 value)
//	u64 n_outputs,   n_outputs   x (32B wpc, u64 value)
//	u64 n_witnesses, n_witnesses x (u64 len, len bytes)

// SerializeTx encodes a transaction body together with its observation
// timestamp in milliseconds.
func SerializeTx(tx entities.FullTx, timestampMs uint64) []byte {
	size := 8 + 8 + len(tx.Inputs)*(entities.HashSize+8+entities.HashSize+8) +
		8 + len(tx.Outputs)*(entities.HashSize+8) + 8
	for _, w := range tx.Witnesses {
		size += 8 + len(w)
	}

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint64(buf, timestampMs)

	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.Prevout.TxID[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, in.Prevout.Index)
		buf = append(buf, in.PrevoutData.WitnessProgramCommitment[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, in.PrevoutData.Value)
	}

	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = append(buf, out.WitnessProgramCommitment[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
	}

	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(tx.Witnesses)))
	for _, w := range tx.Witnesses {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(w)))
		buf = append(buf, w...)
	}
	return buf
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) uint64() (uint64, error) {
	if len(r.buf)-r.off < 8 {
		return 0, errors.New("record truncated")
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) hash() (entities.Hash, error) {
	var h entities.Hash
	if len(r.buf)-r.off < entities.HashSize {
		return h, errors.New("record truncated")
	}
	copy(h[:], r.buf[r.off:])
	r.off += entities.HashSize
	return h, nil
}

func (r *reader) bytes(n uint64) ([]byte, error) {
	if uint64(len(r.buf)-r.off) < n {
		return nil, errors.New("record truncated")
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:])
	r.off += int(n)
	return b, nil
}

// DeserializeTx decodes a body record produced by SerializeTx.
func DeserializeTx(data []byte) (entities.FullTx, uint64, error) {
	var tx entities.FullTx
	r := &reader{buf: data}

	timestamp, err := r.uint64()
	if err != nil {
		return tx, 0, errors.Wrap(err, "reading timestamp")
	}

	nInputs, err := r.uint64()
	if err != nil {
		return tx, 0, errors.Wrap(err, "reading input count")
	}
	for i := uint64(0); i < nInputs; i++ {
		var in entities.Input
		if in.Prevout.TxID, err = r.hash(); err != nil {
			return tx, 0, errors.Wrapf(err, "reading input %d", i)
		}
		if in.Prevout.Index, err = r.uint64(); err != nil {
			return tx, 0, errors.Wrapf(err, "reading input %d", i)
		}
		if in.PrevoutData.WitnessProgramCommitment, err = r.hash(); err != nil {
			return tx, 0, errors.Wrapf(err, "reading input %d", i)
		}
		if in.PrevoutData.Value, err = r.uint64(); err != nil {
			return tx, 0, errors.Wrapf(err, "reading input %d", i)
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	nOutputs, err := r.uint64()
	if err != nil {
		return tx, 0, errors.Wrap(err, "reading output count")
	}
	for i := uint64(0); i < nOutputs; i++ {
		var out entities.Output
		if out.WitnessProgramCommitment, err = r.hash(); err != nil {
			return tx, 0, errors.Wrapf(err, "reading output %d", i)
		}
		if out.Value, err = r.uint64(); err != nil {
			return tx, 0, errors.Wrapf(err, "reading output %d", i)
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	nWitnesses, err := r.uint64()
	if err != nil {
		return tx, 0, errors.Wrap(err, "reading witness count")
	}
	for i := uint64(0); i < nWitnesses; i++ {
		wLen, err := r.uint64()
		if err != nil {
			return tx, 0, errors.Wrapf(err, "reading witness %d length", i)
		}
		w, err := r.bytes(wLen)
		if err != nil {
			return tx, 0, errors.Wrapf(err, "reading witness %d", i)
		}
		tx.Witnesses = append(tx.Witnesses, w)
	}
	return tx, timestamp, nil
}

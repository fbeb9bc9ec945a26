package sum

import "encoding/binary"

// ElementId is a 64-bit element identifier. The high 40 bits carry the
// owning partition's id; the low 24 bits are a per-partition suffix
// (spec §3).
type ElementId uint64

// PartitionId is the 40-bit partition identifier stored in the high bits
// of every ElementId belonging to that partition.
type PartitionId uint64

// MaxPartitionId is the largest value representable in 40 bits.
const MaxPartitionId = (1 << 40) - 1

// MaxElementSuffix is the largest value representable in the 24-bit
// per-partition suffix.
const MaxElementSuffix = (1 << 24) - 1

// NewElementId combines a partition id and a per-partition suffix into an
// ElementId: high 40 bits = partition, low 24 bits = suffix.
func NewElementId(partition PartitionId, suffix uint32) ElementId {
	return ElementId((uint64(partition) << 24) | uint64(suffix&MaxElementSuffix))
}

// Partition returns the 40-bit partition id encoded in the high bits.
func (id ElementId) Partition() PartitionId {
	return PartitionId(uint64(id) >> 24)
}

// Suffix returns the 24-bit per-partition suffix encoded in the low bits.
func (id ElementId) Suffix() uint32 {
	return uint32(id) & MaxElementSuffix
}

// Bytes returns the big-endian 8-byte encoding of the id, as embedded in
// the codec and hashed into the element sum.
func (id ElementId) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// ElementSum computes BLAKE2b(id_be ‖ payload), the digest embedded after
// every element's payload in the codec and folded into the state sum
// (spec §4.1).
func ElementSum(id ElementId, payload []byte) Sum {
	h := NewHasher()
	_, _ = h.Write(id.Bytes())
	_, _ = h.Write(payload)
	return h.Sum()
}

// MetaSum computes the metadata digest folded against the element sums to
// produce a state sum (spec §4.1):
//
//	BLAKE2b(partition_id_be ‖ "CNUM" ‖ commit_number_be ‖ timestamp_be ‖
//	        parent_sum_1 ‖ … ‖ parent_sum_k ‖ extra_metadata_bytes)
func MetaSum(partition PartitionId, commitNumber uint32, timestamp int64, parents []Sum, extra []byte) Sum {
	h := NewHasher()

	var partBuf [8]byte
	binary.BigEndian.PutUint64(partBuf[:], uint64(partition))
	_, _ = h.Write(partBuf[:])

	_, _ = h.Write([]byte("CNUM"))

	var cnumBuf [4]byte
	binary.BigEndian.PutUint32(cnumBuf[:], commitNumber)
	_, _ = h.Write(cnumBuf[:])

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	_, _ = h.Write(tsBuf[:])

	for _, p := range parents {
		_, _ = h.Write(p.Bytes())
	}

	_, _ = h.Write(extra)

	return h.Sum()
}

// StateSum folds a meta sum against every element sum in the state
// (spec §4.1): state_sum = meta_sum XOR (sum_1 XOR … XOR sum_n).
func StateSum(meta Sum, elementSums []Sum) Sum {
	return meta.XOR(XORAll(elementSums...))
}

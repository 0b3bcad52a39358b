package compute

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/kulupu-go/kulupu/primitives"
)

// ErrShortBuffer is returned by the Decode functions when buf ends before a
// fixed-width field has been fully read.
var ErrShortBuffer = errors.New("compute: buffer too short to decode")

// compactEncode writes n as a SCALE-style compact integer: values below 2^6
// fit in a single mode-00 byte, larger values use length-prefixed
// little-endian encoding. Only used here for the variable-length signature
// field; every other field in a seal is fixed-width.
func compactEncode(n uint64) []byte {
	switch {
	case n < 1<<6:
		return []byte{byte(n << 2)}
	case n < 1<<14:
		v := uint16(n<<2) | 0b01
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	case n < 1<<30:
		v := uint32(n<<2) | 0b10
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	default:
		b := encodeUint64(n)
		for len(b) > 1 && b[len(b)-1] == 0 {
			b = b[:len(b)-1]
		}
		return append([]byte{byte((len(b)-4)<<2 | 0b11)}, b...)
	}
}

func compactDecode(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, ErrShortBuffer
	}
	switch buf[0] & 0b11 {
	case 0b00:
		return uint64(buf[0] >> 2), 1, nil
	case 0b01:
		if len(buf) < 2 {
			return 0, 0, ErrShortBuffer
		}
		return uint64(binary.LittleEndian.Uint16(buf[:2]) >> 2), 2, nil
	case 0b10:
		if len(buf) < 4 {
			return 0, 0, ErrShortBuffer
		}
		return uint64(binary.LittleEndian.Uint32(buf[:4]) >> 2), 4, nil
	default:
		n := int(buf[0]>>2) + 4
		if len(buf) < 1+n {
			return 0, 0, ErrShortBuffer
		}
		full := make([]byte, 8)
		copy(full, buf[1:1+n])
		return binary.LittleEndian.Uint64(full), 1 + n, nil
	}
}

// EncodeSealV1 serializes a SealV1 digest item: difficulty (32 bytes
// big-endian) followed by the nonce (32 bytes).
func EncodeSealV1(s SealV1) []byte {
	out := make([]byte, 0, 64)
	out = append(out, s.Difficulty.Big().FillBytes(make([]byte, 32))...)
	out = append(out, s.Nonce[:]...)
	return out
}

// DecodeSealV1 parses the encoding produced by EncodeSealV1.
func DecodeSealV1(buf []byte) (SealV1, error) {
	if len(buf) < 64 {
		return SealV1{}, ErrShortBuffer
	}
	diff := primitives.NewDifficultyFromBig(new(big.Int).SetBytes(buf[:32]))
	var nonce [32]byte
	copy(nonce[:], buf[32:64])
	return SealV1{Difficulty: diff, Nonce: nonce}, nil
}

// EncodeSealV2 serializes a SealV2 digest item: the SealV1 encoding followed
// by a compact-length-prefixed signature.
func EncodeSealV2(s SealV2) []byte {
	out := EncodeSealV1(SealV1{Difficulty: s.Difficulty, Nonce: s.Nonce})
	out = append(out, compactEncode(uint64(len(s.Signature)))...)
	out = append(out, s.Signature...)
	return out
}

// DecodeSealV2 parses the encoding produced by EncodeSealV2.
func DecodeSealV2(buf []byte) (SealV2, error) {
	if len(buf) < 64 {
		return SealV2{}, ErrShortBuffer
	}
	v1, err := DecodeSealV1(buf[:64])
	if err != nil {
		return SealV2{}, err
	}
	n, consumed, err := compactDecode(buf[64:])
	if err != nil {
		return SealV2{}, err
	}
	start := 64 + consumed
	if len(buf) < start+int(n) {
		return SealV2{}, ErrShortBuffer
	}
	sig := make([]byte, n)
	copy(sig, buf[start:start+int(n)])
	return SealV2{Difficulty: v1.Difficulty, Nonce: v1.Nonce, Signature: sig}, nil
}

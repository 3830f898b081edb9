package bytecomp

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"
)

var unitMagic = [4]byte{'J', 'S', 'B', 'C'}

// UnitFormatVersion is the binary format version of encoded units.
const UnitFormatVersion uint16 = 1

const fingerprintSize = 32

var cborEncMode cbor.EncMode

func init() {
	var err error
	cborEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecomp: cbor enc mode: %v", err))
	}
}

func compilerID() string {
	return fmt.Sprintf("pkg=%s-%s;opmax=%d;frame=%d",
		PackageName, PackageVersion, opcodeMax, CallFrameHeaderSize)
}

// IsEncodedUnit reports whether the input starts with the unit magic bytes.
func IsEncodedUnit(data []byte) bool {
	if len(data) < len(unitMagic) {
		return false
	}
	for i := range unitMagic {
		if data[i] != unitMagic[i] {
			return false
		}
	}
	return true
}

// wireValue carries a constant with its number as raw IEEE bits so that -0
// and NaN payloads survive the round trip.
type wireValue struct {
	_    struct{} `cbor:",toarray"`
	Kind ValueKind
	Bool bool
	Bits uint64
	Str  string
}

func (v Value) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(wireValue{Kind: v.Kind, Bool: v.Bool, Bits: math.Float64bits(v.Number), Str: v.Str})
}

func (v *Value) UnmarshalCBOR(data []byte) error {
	var w wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kind > KindEmpty {
		return fmt.Errorf("unknown constant kind: %d", w.Kind)
	}
	*v = Value{Kind: w.Kind, Bool: w.Bool, Number: math.Float64frombits(w.Bits), Str: w.Str}
	return nil
}

func encodePayload(u *Unit) ([]byte, error) {
	if u == nil {
		return nil, fmt.Errorf("nil unit")
	}
	err := u.Walk(func(unit *Unit) error {
		if unit.IsPending() {
			name := unit.Pending.Name
			if name == "" {
				name = "<anonymous>"
			}
			return fmt.Errorf("cannot encode pending function %s", name)
		}
		if unit.Code == nil {
			return fmt.Errorf("cannot encode unit without code")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	payload, err := cborEncMode.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("bytecomp: marshal unit: %w", err)
	}
	return payload, nil
}

// EncodeUnit serializes a fully compiled unit tree into a deterministic blob.
func EncodeUnit(u *Unit) ([]byte, error) {
	payload, err := encodePayload(u)
	if err != nil {
		return nil, err
	}
	sum := sha3.Sum256(payload)

	var buf bytes.Buffer
	buf.Write(unitMagic[:])
	if err := writeU16(&buf, UnitFormatVersion); err != nil {
		return nil, err
	}
	if err := writeString(&buf, compilerID()); err != nil {
		return nil, err
	}
	if err := writeU32(&buf, uint32(len(payload))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(payload); err != nil {
		return nil, err
	}
	if _, err := buf.Write(sum[:]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint returns the hex SHA3-256 of the encoded payload of u.
func Fingerprint(u *Unit) (string, error) {
	payload, err := encodePayload(u)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// UnitHeader is the envelope of an encoded unit.
type UnitHeader struct {
	Version     uint16
	CompilerID  string
	PayloadSize int
	Fingerprint string
}

func readEnvelope(data []byte) (UnitHeader, []byte, error) {
	var h UnitHeader
	r := &byteReader{b: data}
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return h, nil, fmt.Errorf("invalid unit header: %w", err)
	}
	if magic != unitMagic {
		return h, nil, fmt.Errorf("invalid unit magic")
	}
	version, err := readU16(r)
	if err != nil {
		return h, nil, fmt.Errorf("invalid unit version: %w", err)
	}
	if version != UnitFormatVersion {
		return h, nil, fmt.Errorf("unsupported unit version: got=%d want=%d", version, UnitFormatVersion)
	}
	id, err := readString(r)
	if err != nil {
		return h, nil, fmt.Errorf("invalid unit compiler id: %w", err)
	}
	if want := compilerID(); id != want {
		return h, nil, fmt.Errorf("unit compiler mismatch: got=%q want=%q", id, want)
	}
	payloadLen, err := readU32(r)
	if err != nil {
		return h, nil, fmt.Errorf("invalid unit payload length: %w", err)
	}
	remaining := len(data) - r.n
	if payloadLen > uint32(remaining) || remaining-int(payloadLen) < fingerprintSize {
		return h, nil, fmt.Errorf("invalid unit payload size")
	}
	payload := data[r.n : r.n+int(payloadLen)]
	r.n += int(payloadLen)
	want := data[r.n : r.n+fingerprintSize]
	r.n += fingerprintSize
	if r.n != len(data) {
		return h, nil, fmt.Errorf("trailing bytes in unit")
	}
	got := sha3.Sum256(payload)
	if !bytes.Equal(got[:], want) {
		return h, nil, fmt.Errorf("unit checksum mismatch")
	}
	h = UnitHeader{Version: version, CompilerID: id, PayloadSize: len(payload), Fingerprint: hex.EncodeToString(got[:])}
	return h, payload, nil
}

// InspectUnit validates the envelope of an encoded unit and returns its
// header without decoding the payload.
func InspectUnit(data []byte) (UnitHeader, error) {
	h, _, err := readEnvelope(data)
	return h, err
}

// DecodeUnit deserializes and verifies an encoded unit tree.
func DecodeUnit(data []byte) (*Unit, error) {
	_, payload, err := readEnvelope(data)
	if err != nil {
		return nil, err
	}
	u := &Unit{}
	if err := cbor.Unmarshal(payload, u); err != nil {
		return nil, fmt.Errorf("bytecomp: unmarshal unit: %w", err)
	}
	if err := u.Walk(func(unit *Unit) error {
		if unit.Code == nil {
			return fmt.Errorf("decoded unit without code")
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := u.Verify(); err != nil {
		return nil, err
	}
	return u, nil
}

/* wire helpers {{{ */

type byteReader struct {
	b []byte
	n int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.n >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.n:])
	r.n += n
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func writeU16(w io.Writer, v uint16) error {
	return binary.Write(w, binary.BigEndian, v)
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.BigEndian, v)
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readU16(r *byteReader) (uint16, error) {
	var v uint16
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func readU32(r *byteReader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func readString(r *byteReader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > uint32(len(r.b)-r.n) {
		return "", io.ErrUnexpectedEOF
	}
	start := r.n
	r.n += int(n)
	return string(r.b[start:r.n]), nil
}

/* }}} */

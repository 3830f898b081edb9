package bytecomp

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func encodedSample(t *testing.T) (*Unit, []byte) {
	t.Helper()
	u, err := Compile(context.Background(), nestedProgram(), testOptions(t))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	data, err := EncodeUnit(u)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return u, data
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	u, data := encodedSample(t)
	if !IsEncodedUnit(data) {
		t.Fatalf("encoded unit lacks magic")
	}
	back, err := DecodeUnit(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Count() != u.Count() {
		t.Fatalf("unit count: got=%d want=%d", back.Count(), u.Count())
	}
	if got, want := back.Code.String(), u.Code.String(); got != want {
		t.Fatalf("disassembly differs:\ngot:\n%s\nwant:\n%s", got, want)
	}
	want, err := Fingerprint(u)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	got, err := Fingerprint(back)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if got != want {
		t.Fatalf("fingerprint: got=%s want=%s", got, want)
	}
	again, err := EncodeUnit(back)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Fatalf("re-encoded bytes differ")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	_, a := encodedSample(t)
	_, b := encodedSample(t)
	if !bytes.Equal(a, b) {
		t.Fatalf("two compilations encode differently")
	}
}

func TestInspectUnit(t *testing.T) {
	u, data := encodedSample(t)
	h, err := InspectUnit(data)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if h.Version != UnitFormatVersion {
		t.Fatalf("version: got=%d want=%d", h.Version, UnitFormatVersion)
	}
	if h.CompilerID != compilerID() {
		t.Fatalf("compiler id: got=%q want=%q", h.CompilerID, compilerID())
	}
	if h.PayloadSize <= 0 || h.PayloadSize >= len(data) {
		t.Fatalf("payload size: got=%d want in (0,%d)", h.PayloadSize, len(data))
	}
	fp, _ := Fingerprint(u)
	if h.Fingerprint != fp {
		t.Fatalf("fingerprint: got=%s want=%s", h.Fingerprint, fp)
	}
}

func TestDecodeRejectsDamagedUnits(t *testing.T) {
	_, data := encodedSample(t)
	clone := func() []byte { return append([]byte(nil), data...) }

	flipped := clone()
	flipped[len(flipped)-fingerprintSize-1] ^= 0xff
	badMagic := clone()
	badMagic[0] = 'X'
	badVersion := clone()
	badVersion[5]++

	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "invalid unit header"},
		{"magic", badMagic, "invalid unit magic"},
		{"version", badVersion, "unsupported unit version"},
		{"truncated", data[:len(data)-10], "invalid unit payload size"},
		{"trailing", append(clone(), 0), "trailing bytes"},
		{"checksum", flipped, "checksum mismatch"},
	}
	for _, c := range cases {
		_, err := DecodeUnit(c.data)
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: error got=%v want containing %q", c.name, err, c.want)
		}
	}
}

func TestValueKeepsNegativeZeroAndNaN(t *testing.T) {
	for _, n := range []float64{math.Copysign(0, -1), math.NaN(), 1.5} {
		data, err := cbor.Marshal(NumberValue(n))
		if err != nil {
			t.Fatalf("marshal %v: %v", n, err)
		}
		var v Value
		if err := cbor.Unmarshal(data, &v); err != nil {
			t.Fatalf("unmarshal %v: %v", n, err)
		}
		if math.Float64bits(v.Number) != math.Float64bits(n) {
			t.Fatalf("number bits: got=%x want=%x", math.Float64bits(v.Number), math.Float64bits(n))
		}
	}
	data, _ := cbor.Marshal(StringValue("hi"))
	var v Value
	if err := cbor.Unmarshal(data, &v); err != nil || v != StringValue("hi") {
		t.Fatalf("string value: got=%v err=%v want=hi", v, err)
	}
}

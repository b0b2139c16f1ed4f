package llvm

import (
	"testing"

	"novac/src/diag"
	"novac/src/types"
	"novac/src/util"
)

func newTestEmitter(t *testing.T) *Emitter {
	t.Helper()
	e := NewEmitter(util.Options{StripDebug: true}, types.NewRegistry(), diag.NewBag(), "test")
	t.Cleanup(e.Dispose)
	return e
}

func TestLowerTypePrimitives(t *testing.T) {
	e := newTestEmitter(t)
	reg := e.Reg

	cases := []struct {
		name string
		typ  *types.Type
		want string
	}{
		{"void", reg.Void(), "void"},
		{"bool", reg.Bool(), "i1"},
		{"i32", reg.GetInt(true, 32), "i32"},
		{"u64", reg.GetInt(false, 64), "i64"},
		{"f32", reg.GetFloat(32), "float"},
		{"f64", reg.GetFloat(64), "double"},
	}
	for _, c := range cases {
		got, err := e.lowerType(c.typ)
		if err != nil {
			t.Fatalf("%s: unexpected error: %s", c.name, err)
		}
		if got.String() != c.want {
			t.Fatalf("%s: expected LLVM type %q, got %q", c.name, c.want, got.String())
		}
	}
}

// A pointer to a zero-bit type lowers to an opaque i8* regardless of the
// pointee, matching SPEC_FULL.md §4.1's "a pointer to a zero-bit type still
// occupies a pointer's worth of storage."
func TestLowerTypePointerToZeroBitIsOpaque(t *testing.T) {
	e := newTestEmitter(t)
	reg := e.Reg

	ptr := reg.GetPointer(reg.Void(), true)
	got, err := e.lowerType(ptr)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want, _ := e.lowerType(reg.GetPointer(reg.GetInt(false, 8), true))
	if got.String() != want.String() {
		t.Fatalf("expected a pointer to zero-bit type to lower like i8*, got %s", got.String())
	}
}

// A slice lowers to the {ptr, len} pair SPEC_FULL.md §4.1 specifies.
func TestLowerTypeSliceIsPtrLenPair(t *testing.T) {
	e := newTestEmitter(t)
	reg := e.Reg

	sl := reg.GetSlice(reg.GetInt(true, 32), false)
	got, err := e.lowerType(sl)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got.StructElementTypesCount() != 2 {
		t.Fatalf("expected a 2-element struct for a slice, got %d elements", got.StructElementTypesCount())
	}
}

// Struct lowering is cached on the Type itself so a second lowering of the
// same *types.Type returns the identical llvm.Type rather than re-declaring
// a duplicate named struct.
func TestLowerStructTypeIsCached(t *testing.T) {
	e := newTestEmitter(t)
	reg := e.Reg

	st := types.NewStruct("Point")
	st.Fields = []types.Field{
		{Name: "x", Type: reg.GetInt(true, 32), GenIdx: 0},
		{Name: "y", Type: reg.GetInt(true, 32), GenIdx: 1},
	}
	st.Complete = true

	first, err := e.lowerType(st)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	second, err := e.lowerType(st)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if first.String() != second.String() {
		t.Fatalf("expected identical lowering on repeat calls, got %s vs %s", first.String(), second.String())
	}
	if first.StructElementTypesCount() != 2 {
		t.Fatalf("expected 2 fields, got %d", first.StructElementTypesCount())
	}
}

// A zero-bit struct field (GenIdx == -1) is omitted from the generated
// layout (SPEC_FULL.md §4.1).
func TestLowerStructTypeSkipsZeroBitFields(t *testing.T) {
	e := newTestEmitter(t)
	reg := e.Reg

	st := types.NewStruct("WithVoidField")
	st.Fields = []types.Field{
		{Name: "tag", Type: reg.GetInt(true, 32), GenIdx: 0},
		{Name: "marker", Type: reg.Void(), GenIdx: -1},
	}
	st.Complete = true

	got, err := e.lowerType(st)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got.StructElementTypesCount() != 1 {
		t.Fatalf("expected the zero-bit field to be omitted, got %d elements", got.StructElementTypesCount())
	}
}

func TestErrTagBitsFallsBackWhenUnset(t *testing.T) {
	e := newTestEmitter(t)
	if bits := e.errTagBits(); bits != 32 {
		t.Fatalf("expected the unit-test fallback of 32 bits, got %d", bits)
	}
}

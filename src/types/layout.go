package types

// CompleteStruct finalizes a pre-allocated Struct type's field list and
// assigns generated layout indices, implementing SPEC_FULL.md §4.1:
// "Struct has both a src-field count and a gen-field count; zero-bit fields
// have gen_index=-1 and are omitted from the runtime layout."
//
// fields must already carry Name/Type/SrcIdx; GenIdx is computed here.
func CompleteStruct(s *Type, fields []Field, invalid bool) {
	gen := 0
	for i := range fields {
		if fields[i].Type.ZeroBits() {
			fields[i].GenIdx = -1
		} else {
			fields[i].GenIdx = gen
			gen++
		}
	}
	s.Fields = fields
	s.StructInvalid = invalid
	s.Complete = true
	s.zeroBitsSet = false // Re-derive now that Complete is true.
}

// CompleteEnum finalizes a pre-allocated Enum type, computing the tag type
// and deciding whether the enum collapses to a bare integer tag or needs a
// {tag, union} representation (SPEC_FULL.md §4.1: "Enum with only tag (all
// payload types zero-bit) collapses to its tag integer; else it is {tag,
// union-of-largest-payload}").
func CompleteEnum(reg *Registry, e *Type, fields []EnumField, invalid bool) {
	e.EnumFields = fields
	e.StructInvalid = invalid
	e.TagType = smallestTagType(reg, fields)

	allZeroBitPayload := true
	var maxBits int
	var widest *Type
	for _, f := range fields {
		if !f.Type.ZeroBits() {
			allZeroBitPayload = false
			if sz := approxBitSize(f.Type); sz > maxBits {
				maxBits = sz
				widest = f.Type
			}
		}
	}

	e.Complete = true
	if allZeroBitPayload {
		e.UnionType = nil
	} else {
		union := NewStruct(e.Name + ".Union")
		CompleteStruct(union, []Field{{Name: "payload", Type: widest, SrcIdx: 0, GenIdx: 0}}, false)
		e.UnionType = union
	}
	e.zeroBitsSet = false
}

// smallestTagType picks the smallest unsigned integer type that fits the
// maximum error/enum value count, bounded by a 64-bit tag (SPEC_FULL.md
// §3 "Error-value entry": "the tag type is the smallest integer type
// fitting the maximum error-value count").
func smallestTagType(reg *Registry, fields []EnumField) *Type {
	n := uint64(len(fields))
	bits := bitsNeeded(n)
	return reg.GetInt(false, bits)
}

// SmallestErrTagType mirrors smallestTagType for the Import Graph's global
// error-value table (SPEC_FULL.md §3), bounded by the err_tag_type width.
func SmallestErrTagType(reg *Registry, maxValue uint64, errTagBits int) *Type {
	bits := bitsNeeded(maxValue + 1)
	if bits > errTagBits {
		bits = errTagBits
	}
	return reg.GetInt(false, bits)
}

func bitsNeeded(n uint64) int {
	switch {
	case n <= 1:
		return 8
	case n <= 1<<8:
		return 8
	case n <= 1<<16:
		return 16
	case n <= 1<<32:
		return 32
	default:
		return 64
	}
}

// approxBitSize gives a rough ordering key for "largest payload" selection;
// it does not need to be the exact ABI size, only a consistent ordering
// over this engine's scalar/aggregate types.
func approxBitSize(t *Type) int {
	c := t.CanonicalType()
	switch c.Kind {
	case Int, Float:
		return c.Bits
	case Bool:
		return 8
	case Pointer:
		return 64
	case Slice:
		return 128
	case Struct:
		sz := 0
		for _, f := range c.Fields {
			sz += approxBitSize(f.Type)
		}
		return sz
	case Array:
		return approxBitSize(c.Child) * int(c.Len)
	default:
		return 0
	}
}

// ErrorUnionLayoutZeroBits reports the ErrorUnion collapse rule from
// SPEC_FULL.md §4.1: "ErrorUnion{T} where T is zero-bit collapses to the
// error tag type; else {tag:err, value:T}". Callers needing the tag-only
// representation use this to decide whether to allocate a payload slot.
func ErrorUnionLayoutZeroBits(eu *Type) bool {
	return eu.Child.ZeroBits()
}

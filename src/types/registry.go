package types

import (
	"fmt"
	"strings"
	"sync"
)

// Registry interns all constructed types, guaranteeing one canonical
// instance per type shape (SPEC_FULL.md §4.1). A Registry is safe for
// concurrent use: the Declaration Resolver and Expression Analyzer both
// construct types while resolving independent top-level declarations, and
// the teacher's codegen path (tinygo-go-llvm transform.go) shows this corpus
// reaching for a mutex-guarded map for exactly this kind of shared table.
type Registry struct {
	mu sync.Mutex

	singletons map[Kind]*Type
	ints       map[intKey]*Type
	floats     map[int]*Type
	pointers   map[ptrKey]*Type
	arrays     map[arrKey]*Type
	slices     map[ptrKey]*Type
	maybes     map[*Type]*Type
	errUnions  map[*Type]*Type
	typeDecls  map[typeDeclKey]*Type
	fns        map[string]*Type // Keyed by the full Fn id string (FnKey below).
}

type intKey struct {
	signed bool
	bits   int
}

type ptrKey struct {
	child   *Type
	isConst bool
}

type arrKey struct {
	child *Type
	len   uint64
}

type typeDeclKey struct {
	name  string
	child *Type
}

// NewRegistry returns an empty Registry with its well-known singletons
// pre-seeded.
func NewRegistry() *Registry {
	r := &Registry{
		singletons: make(map[Kind]*Type, 8),
		ints:       make(map[intKey]*Type, 16),
		floats:     make(map[int]*Type, 4),
		pointers:   make(map[ptrKey]*Type, 64),
		arrays:     make(map[arrKey]*Type, 64),
		slices:     make(map[ptrKey]*Type, 64),
		maybes:     make(map[*Type]*Type, 32),
		errUnions:  make(map[*Type]*Type, 32),
		typeDecls:  make(map[typeDeclKey]*Type, 32),
		fns:        make(map[string]*Type, 32),
	}
	for _, k := range []Kind{Invalid, MetaType, Namespace, Void, Unreachable, Bool, NumLitInt, NumLitFloat, UndefLit, PureError} {
		r.singletons[k] = &Type{Kind: k}
	}
	return r
}

func (r *Registry) singleton(k Kind) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.singletons[k]
}

// Invalid returns the single Invalid type instance. Type construction can
// never fail (SPEC_FULL.md §4.1 "Failure semantics"); Invalid is the
// distinguished sentinel that propagates through all operations instead.
func (r *Registry) Invalid() *Type { return r.singleton(Invalid) }

func (r *Registry) MetaType() *Type    { return r.singleton(MetaType) }
func (r *Registry) Namespace() *Type   { return r.singleton(Namespace) }
func (r *Registry) Void() *Type        { return r.singleton(Void) }
func (r *Registry) Unreachable() *Type { return r.singleton(Unreachable) }
func (r *Registry) Bool() *Type        { return r.singleton(Bool) }
func (r *Registry) NumLitInt() *Type   { return r.singleton(NumLitInt) }
func (r *Registry) NumLitFloat() *Type { return r.singleton(NumLitFloat) }
func (r *Registry) UndefLit() *Type    { return r.singleton(UndefLit) }
func (r *Registry) PureError() *Type   { return r.singleton(PureError) }

// GetInt interns the signed/unsigned integer type of the given bit width.
func (r *Registry) GetInt(signed bool, bits int) *Type {
	k := intKey{signed, bits}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.ints[k]; ok {
		return t
	}
	t := &Type{Kind: Int, Signed: signed, Bits: bits}
	r.ints[k] = t
	return t
}

// GetFloat interns the floating point type of the given bit width.
func (r *Registry) GetFloat(bits int) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.floats[bits]; ok {
		return t
	}
	t := &Type{Kind: Float, Bits: bits}
	r.floats[bits] = t
	return t
}

// GetPointer interns Pointer{child, is_const} (SPEC_FULL.md §4.1: "Pointer
// ... store per-(child,is_const) cached instance").
func (r *Registry) GetPointer(child *Type, isConst bool) *Type {
	k := ptrKey{child, isConst}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.pointers[k]; ok {
		return t
	}
	t := &Type{Kind: Pointer, Child: child, IsConst: isConst}
	r.pointers[k] = t
	return t
}

// GetArray interns Array{child, len}, caching per (child, len).
func (r *Registry) GetArray(child *Type, length uint64) *Type {
	k := arrKey{child, length}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.arrays[k]; ok {
		return t
	}
	t := &Type{Kind: Array, Child: child, Len: length}
	r.arrays[k] = t
	return t
}

// GetSlice interns Slice{child, is_const}: a struct of {ptr, len} fields
// per SPEC_FULL.md §4.1's layout rules.
func (r *Registry) GetSlice(child *Type, isConst bool) *Type {
	k := ptrKey{child, isConst}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.slices[k]; ok {
		return t
	}
	t := &Type{Kind: Slice, Child: child, IsConst: isConst}
	r.slices[k] = t
	return t
}

// GetMaybe interns Maybe{child}.
func (r *Registry) GetMaybe(child *Type) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.maybes[child]; ok {
		return t
	}
	t := &Type{Kind: Maybe, Child: child}
	r.maybes[child] = t
	return t
}

// GetErrorUnion interns ErrorUnion{child}.
func (r *Registry) GetErrorUnion(child *Type) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.errUnions[child]; ok {
		return t
	}
	t := &Type{Kind: ErrorUnion, Child: child}
	r.errUnions[child] = t
	return t
}

// GetTypeDecl interns a transparent TypeDecl alias by (name, child).
func (r *Registry) GetTypeDecl(name string, child *Type) *Type {
	k := typeDeclKey{name, child}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.typeDecls[k]; ok {
		return t
	}
	t := &Type{Kind: TypeDecl, Name: name, Child: child, Canonical: child}
	r.typeDecls[k] = t
	return t
}

// FnID is the full identity of a function type: extern/naked/cold/var_args,
// the ordered parameter list with noalias flags, and the return type
// (SPEC_FULL.md §4.1: "get_fn hashes the full id").
type FnID struct {
	Extern  bool
	Naked   bool
	Cold    bool
	VarArgs bool
	Params  []Param
	Return  *Type
}

func (id FnID) key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "e%tn%tc%tv%t|", id.Extern, id.Naked, id.Cold, id.VarArgs)
	for _, p := range id.Params {
		fmt.Fprintf(&sb, "%p:%t,", p.Type, p.NoAlias)
	}
	fmt.Fprintf(&sb, "|%p", id.Return)
	return sb.String()
}

// GetFn interns a Fn type by its full FnID.
func (r *Registry) GetFn(id FnID) *Type {
	k := id.key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.fns[k]; ok {
		return t
	}
	t := &Type{
		Kind:      Fn,
		FnExtern:  id.Extern,
		FnNaked:   id.Naked,
		FnCold:    id.Cold,
		FnVarArgs: id.VarArgs,
		Params:    append([]Param(nil), id.Params...),
		Return:    id.Return,
	}
	r.fns[k] = t
	return t
}

// NewStruct pre-allocates an incomplete, named Struct entry. The resolver
// records this entry in the declaring scope before resolving field types so
// self-referential types via pointer can refer to it (SPEC_FULL.md §4.1,
// §9 "Debug info recursion" / "interned types with back-refs"). Struct/Enum
// are nominal rather than structural, so they are never interned by shape —
// each declaration gets its own instance.
func NewStruct(name string) *Type {
	return &Type{Kind: Struct, Name: name}
}

// NewEnum pre-allocates an incomplete, named Enum entry; see NewStruct.
func NewEnum(name string) *Type {
	return &Type{Kind: Enum, Name: name}
}

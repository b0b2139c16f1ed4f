// Package llvm implements the IR Emitter and Debug-Info Emitter
// (SPEC_FULL.md §4.7, §4.8): lowering of the fully-resolved, fully-analyzed
// syntax tree into an LLVM module via tinygo.org/x/go-llvm, the same cgo
// binding the teacher's src/ir/llvm/transform.go drives. The two-phase
// "declare everything, then define bodies" shape and the mutex-guarded
// global symbol table are carried over from that file; its parallel codegen
// is not (one llvm.Builder lowers every function); what changes is what
// gets lowered —
// this engine's Type Registry and Scope Graph decorations instead of VSL's
// untyped int/float two-type system.
package llvm

import (
	"fmt"
	"sync"

	"tinygo.org/x/go-llvm"

	"novac/src/ast"
	"novac/src/diag"
	"novac/src/resolve"
	"novac/src/scope"
	"novac/src/types"
	"novac/src/util"
)

// Emitter owns the process-wide LLVM context/module/builder singletons
// (SPEC_FULL.md §5 "Shared resource policy": "The LLVM context, module, and
// builder are process-wide singletons mutated exclusively by the emitter").
type Emitter struct {
	Opt   util.Options
	Reg   *types.Registry
	Diags *diag.Bag

	ctx     llvm.Context
	mod     llvm.Module
	builder llvm.Builder
	di      *debugEmitter

	globalsMu sync.Mutex
	globals   map[string]llvm.Value // Declared functions and module-level globals, by symbol name.
	typeCache map[*types.Type]llvm.Type

	mainFn     *scope.FnEntry // First non-extern, non-test function seen, for -entry wiring.
	errTagType *types.Type    // The resolver's global error-tag width, fixed once per compilation (SPEC_FULL.md §3).

	// pendingFns/pendingGlobals accumulate declarations handed in through
	// WireDeclareFunction/WireDeclareGlobal (the resolve.Resolver hooks) in
	// resolution order, until the driver calls EmitAll once analysis is
	// complete (SPEC_FULL.md §5(d): emission only after all decls resolve).
	pendingFns     []*scope.FnEntry
	pendingGlobals []GlobalDecl
}

// EmitAll runs EmitProgram over every declaration accumulated through
// WireDeclareFunction/WireDeclareGlobal since this Emitter was created —
// the driver-facing entry point once resolve.Resolver.ResolveAll has run.
func (e *Emitter) EmitAll(r *resolve.Resolver) error {
	return e.EmitProgram(r, e.pendingFns, e.pendingGlobals)
}

// NewEmitter creates an Emitter with a fresh LLVM context and module named
// after the compilation unit.
func NewEmitter(opt util.Options, reg *types.Registry, diags *diag.Bag, moduleName string) *Emitter {
	ctx := llvm.NewContext()
	mod := ctx.NewModule(moduleName)
	e := &Emitter{
		Opt:       opt,
		Reg:       reg,
		Diags:     diags,
		ctx:       ctx,
		mod:       mod,
		builder:   ctx.NewBuilder(),
		globals:   make(map[string]llvm.Value, 64),
		typeCache: make(map[*types.Type]llvm.Type, 64),
	}
	if !opt.StripDebug {
		e.di = newDebugEmitter(e)
	}
	return e
}

// Dispose releases the builder and context. Callers that only need the
// rendered IR/object buffer should call this after WriteObject/String.
func (e *Emitter) Dispose() {
	e.builder.Dispose()
	if e.di != nil {
		e.di.dispose()
	}
	e.mod.Dispose()
	e.ctx.Dispose()
}

// Module exposes the underlying llvm.Module, mainly for tests asserting on
// its textual IR via m.String().
func (e *Emitter) Module() llvm.Module { return e.mod }

// EmitProgram lowers every function and global declaration the resolver
// visited, in two phases mirroring the teacher's GenLLVM: headers and global
// storage first (so forward references between functions always resolve),
// function bodies second. SPEC_FULL.md §5(d): "IR emission begins only after
// all semantic analysis errors are collected — if any errors exist, emission
// is skipped."
func (e *Emitter) EmitProgram(r *resolve.Resolver, fns []*scope.FnEntry, globalsDecl []GlobalDecl) error {
	if e.Diags.HasErrors() {
		return fmt.Errorf("emission skipped: %d semantic diagnostic(s) outstanding", e.Diags.Len())
	}
	e.errTagType = r.ErrTagType()

	for _, g := range globalsDecl {
		if err := e.declareGlobal(g); err != nil {
			return err
		}
	}
	for _, fn := range fns {
		if err := e.declareFunction(fn); err != nil {
			return err
		}
	}
	for _, fn := range fns {
		if fn.DefNode == nil || fn.IsExtern {
			continue
		}
		if err := e.defineFunction(fn); err != nil {
			return err
		}
	}
	if e.di != nil {
		e.di.finalize()
	}
	return nil
}

// GlobalDecl is what resolve.Resolver.DeclareGlobal hands the emitter for one
// top-level `var`/`const` (SPEC_FULL.md §4.3 "Variable").
type GlobalDecl struct {
	Name     string
	Type     *types.Type
	ConstVal ast.ConstVal
	IsConst  bool
}

// declareGlobal emits a module-level global for a top-level constant
// (SPEC_FULL.md §4.7 "Constants": "emitted once as a module-level private
// unnamed constant global when its type is a handle type").
func (e *Emitter) declareGlobal(g GlobalDecl) error {
	t, err := e.lowerType(g.Type)
	if err != nil {
		return fmt.Errorf("declareGlobal(%q): %w", g.Name, err)
	}
	gv := llvm.AddGlobal(e.mod, t, g.Name)
	gv.SetGlobalConstant(g.IsConst)
	if init, err := e.constValToLLVM(g.Type, g.ConstVal); err == nil {
		gv.SetInitializer(init)
	} else {
		gv.SetInitializer(llvm.ConstNull(t))
	}
	e.globalsMu.Lock()
	e.globals[g.Name] = gv
	e.globalsMu.Unlock()
	return nil
}

// genTargetMachine builds the llvm.TargetMachine this Emitter writes object
// code for (SPEC_FULL.md §6 "LLVM-style IR library": "module/builder/
// target-machine creation"), mirroring the teacher's genTargetTriple plus
// the tail of GenLLVM that calls CreateTargetMachine/CreateTargetData.
func (e *Emitter) genTargetMachine() (llvm.TargetMachine, error) {
	triple := targetTriple(e.Opt)
	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargets()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()

	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return llvm.TargetMachine{}, fmt.Errorf("genTargetMachine: %w", err)
	}
	opt := llvm.CodeGenLevelDefault
	if e.Opt.Release {
		opt = llvm.CodeGenLevelAggressive
	}
	tm := target.CreateTargetMachine(triple, "generic", "", opt, llvm.RelocDefault, llvm.CodeModelDefault)
	e.mod.SetTarget(triple)
	e.mod.SetDataLayout(tm.CreateTargetData().String())
	return tm, nil
}

// targetTriple realizes the CLI's arch/vendor/os selection into an LLVM
// target triple, generalizing the teacher's genTargetTriple to this engine's
// wider util.Options surface (SPEC_FULL.md §6 "target triple overrides
// (os/arch/environ/subsystem)").
func targetTriple(opt util.Options) string {
	if opt.TargetArch == util.UnknownArch {
		return llvm.DefaultTargetTriple()
	}
	var arch, vendor, os, env string
	switch opt.TargetArch {
	case util.X86_64:
		arch = "x86_64"
	case util.X86_32:
		arch = "i386"
	case util.Aarch64:
		arch = "aarch64"
	case util.Riscv64:
		arch = "riscv64"
	case util.Riscv32:
		arch = "riscv32"
	default:
		arch = "x86_64"
	}
	switch opt.TargetVendor {
	case util.Apple:
		vendor = "apple"
	case util.IBM:
		vendor = "ibm"
	default:
		vendor = "pc"
	}
	switch opt.TargetOS {
	case util.Linux:
		os, env = "linux", "gnu"
	case util.Windows:
		os, env = "windows", "gnu"
	case util.MAC:
		os, env = "darwin", ""
	default:
		os, env = "none", ""
	}
	if env == "" {
		return fmt.Sprintf("%s-%s-%s", arch, vendor, os)
	}
	return fmt.Sprintf("%s-%s-%s-%s", arch, vendor, os, env)
}

// EmitObject runs the target-machine/object-file tail of the teacher's
// GenLLVM: verify, then EmitToMemoryBuffer into an object file buffer.
func (e *Emitter) EmitObject() ([]byte, error) {
	if err := llvm.VerifyModule(e.mod, llvm.ReturnStatusAction); err != nil {
		return nil, fmt.Errorf("module verification failed: %w", err)
	}
	tm, err := e.genTargetMachine()
	if err != nil {
		return nil, err
	}
	buf, err := tm.EmitToMemoryBuffer(e.mod, llvm.ObjectFile)
	if err != nil {
		return nil, fmt.Errorf("EmitToMemoryBuffer: %w", err)
	}
	return buf.Bytes(), nil
}

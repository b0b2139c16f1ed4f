package util

// ----------------------------
// ----- Type definitions -----
// ----------------------------

type Options struct {
	Src          string // Path to source file.
	Out          string // Path to output file.
	Threads      int    // Thread count.
	Verbose      bool   // Set by --verbose; recorded only, no statistics are printed.
	TokenStream  bool   // Set true if compiler should output token stream and exit.
	LLVM         bool   // Set true if compiler should use the LLVM framework to issue optimisations and code generaton.
	TargetArch   int    // Output target architecture.
	TargetVendor int    // Output target vendor type. 0 = unknown.
	TargetCPU    int    // Output target CPU. 0 = generic CPU.
	TargetOS     int    // Output target operating system type.

	// Fields below extend the teacher's original Options to the CLI surface
	// SPEC_FULL.md §6/§4.10 describes. The driver package's cobra-based
	// command (src/driver/command.go) populates every field below; only
	// the fields above existed in the teacher's original flag surface.
	OutputKind  OutputKind // Obj, Exe, Lib, or Unknown.
	Release     bool       // Release build: disables safety checks and stack poisoning (SPEC_FULL.md §4.7).
	TestBuild   bool       // Emit `test` functions as a runnable test harness entry point.
	StripDebug  bool       // Strip/skip DWARF debug-info emission (SPEC_FULL.md §4.8).
	LibDirs     []string   // Additional library search directories (-L).
	Libs        []string   // Additional libraries to link against (-l).
	Environ     string     // Target environment/ABI override (e.g. "gnu", "musl").
	Subsystem   string     // Target subsystem override (Windows).
	LibcInclude string     // libc header search directory.
	LibcLib     string     // libc library search directory.
	DynLinker   string     // Dynamic linker path override.
	LinkLibc    bool       // Link against the platform libc.
	RDynamic    bool       // Export all symbols to the dynamic symbol table.
	MinGWVer    string     // Minimum supported MinGW version string.
	MacOSXMin   string     // Minimum supported macOS version string.
	IOSMin      string     // Minimum supported iOS version string.
}

// OutputKind selects what the driver links/emits (SPEC_FULL.md §6 "Selects
// an output kind ∈ {Obj, Exe, Lib, Unknown}").
type OutputKind int

const (
	OutputUnknown OutputKind = iota
	OutputObj
	OutputExe
	OutputLib
)

// ---------------------
// ----- Constants -----
// ---------------------

// Target machine architectures.
const (
	UnknownArch = iota
	X86_64
	X86_32
	Aarch64
	Riscv64
	Riscv32
)

// Target operating system.
const (
	UnknownOS = iota
	Linux
	Windows
	MAC
)

// Target vendor.
const (
	UnknownVendor = iota
	Apple
	PC
	MIPS
	IBM
	SUSE
	AMD
)

// Target CPU.
const (
	CPUGeneric = iota
)


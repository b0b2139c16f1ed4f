package driver

import (
	"github.com/spf13/cobra"

	"novac/src/util"
)

// NewCommand builds the novac root command (SPEC_FULL.md §4.10/§6), binding
// every flag the driver's Options struct carries via cobra+pflag in place of
// the teacher's original hand-rolled flag loop — the richer CLI surface this
// spec implies (target triples, libc paths, per-platform minimum-version
// strings) is exactly the many-subflag shape cobra/pflag are for.
func NewCommand() *cobra.Command {
	opt := util.Options{}
	var outputKind string
	var profilePath string

	cmd := &cobra.Command{
		Use:   "novac [source file]",
		Short: "Compiler for the Nova systems language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt.Src = args[0]
			opt.OutputKind = outputKindFromString(outputKind)

			profile, err := LoadProfile(profilePath)
			if err != nil {
				return err
			}
			ApplyProfile(&opt, profile)

			return Compile(opt, NewStubParser())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opt.Out, "output", "o", "", "path to the output object/executable/library")
	flags.IntVarP(&opt.Threads, "threads", "t", 1, "worker thread count (recorded in Options; analysis and codegen run on one thread)")
	flags.BoolVarP(&opt.Verbose, "verbose", "v", false, "verbose mode (recorded in Options; no statistics are printed)")
	flags.BoolVar(&opt.LLVM, "llvm", true, "use the LLVM backend (always true; flag kept for CLI-surface parity with the teacher)")
	flags.StringVar(&outputKind, "emit", "exe", "output kind: obj, exe, or lib")
	flags.BoolVar(&opt.Release, "release", false, "release build: disable safety checks and stack poisoning")
	flags.BoolVar(&opt.TestBuild, "test", false, "emit `test` functions as a runnable test harness")
	flags.BoolVar(&opt.StripDebug, "strip-debug", false, "omit DWARF debug info")
	flags.StringArrayVarP(&opt.LibDirs, "library-path", "L", nil, "additional library search directory (repeatable)")
	flags.StringArrayVarP(&opt.Libs, "library", "l", nil, "additional library to link against (repeatable)")
	flags.StringVar(&opt.Environ, "environ", "", "target environment/ABI override (e.g. gnu, musl)")
	flags.StringVar(&opt.Subsystem, "subsystem", "", "target subsystem override (Windows)")
	flags.StringVar(&opt.LibcInclude, "libc-include", "", "libc header search directory")
	flags.StringVar(&opt.LibcLib, "libc-lib", "", "libc library search directory")
	flags.StringVar(&opt.DynLinker, "dynamic-linker", "", "dynamic linker path override")
	flags.BoolVar(&opt.LinkLibc, "link-libc", false, "link against the platform libc")
	flags.BoolVar(&opt.RDynamic, "rdynamic", false, "export all symbols to the dynamic symbol table")
	flags.StringVar(&opt.MinGWVer, "mingw-version", "", "minimum supported MinGW version")
	flags.StringVar(&opt.MacOSXMin, "macosx-version-min", "", "minimum supported macOS version")
	flags.StringVar(&opt.IOSMin, "ios-version-min", "", "minimum supported iOS version")
	flags.StringVar(&profilePath, "profile", "novac.yaml", "path to an optional YAML defaults file")
	flags.IntVar(&opt.TargetArch, "target-arch", util.UnknownArch, "0=unknown 1=x86_64 2=x86_32 3=aarch64 4=riscv64 5=riscv32")
	flags.IntVar(&opt.TargetOS, "target-os", util.UnknownOS, "0=unknown 1=linux 2=windows 3=macos")
	flags.IntVar(&opt.TargetVendor, "target-vendor", util.UnknownVendor, "0=unknown 1=apple 2=pc 3=mips 4=ibm 5=suse 6=amd")

	return cmd
}

func outputKindFromString(s string) util.OutputKind {
	switch s {
	case "obj":
		return util.OutputObj
	case "lib":
		return util.OutputLib
	case "exe":
		return util.OutputExe
	default:
		return util.OutputUnknown
	}
}

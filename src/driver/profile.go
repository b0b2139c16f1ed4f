package driver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"novac/src/util"
)

// Profile is the optional checked-in defaults file for the CLI surface
// (SPEC_FULL.md §4.11): "A compiler this size typically lets target triples
// / libc paths be recorded in a checked-in profile file rather than retyped
// on every invocation." Explicit CLI flags always override profile values;
// a Profile only ever fills in what the command line left at its zero
// value.
type Profile struct {
	Arch       string `yaml:"arch"`
	Vendor     string `yaml:"vendor"`
	OS         string `yaml:"os"`
	Environ    string `yaml:"environ"`
	LibcInclude string `yaml:"libc_include"`
	LibcLib    string `yaml:"libc_lib"`
	DynLinker  string `yaml:"dyn_linker"`
	LinkLibc   bool   `yaml:"link_libc"`
}

// LoadProfile reads path (typically "novac.yaml" in the working directory)
// via gopkg.in/yaml.v3, the config library this engine's ambient stack
// adopts from sunholo-data-ailang's dependency surface. A missing file is
// not an error: profile is the entirely-optional case, so the zero Profile
// is returned and every field falls back to whatever the command line (or
// Options' own zero defaults) already supplied.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("driver: reading profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("driver: parsing profile %q: %w", path, err)
	}
	return p, nil
}

// ApplyProfile fills in zero-valued fields of opt from p, leaving any value
// the command line already set untouched (SPEC_FULL.md §4.11: "explicit CLI
// flags override profile values").
func ApplyProfile(opt *util.Options, p Profile) {
	if opt.TargetArch == util.UnknownArch {
		opt.TargetArch = archFromString(p.Arch)
	}
	if opt.TargetVendor == util.UnknownVendor {
		opt.TargetVendor = vendorFromString(p.Vendor)
	}
	if opt.TargetOS == util.UnknownOS {
		opt.TargetOS = osFromString(p.OS)
	}
	if opt.Environ == "" {
		opt.Environ = p.Environ
	}
	if opt.LibcInclude == "" {
		opt.LibcInclude = p.LibcInclude
	}
	if opt.LibcLib == "" {
		opt.LibcLib = p.LibcLib
	}
	if opt.DynLinker == "" {
		opt.DynLinker = p.DynLinker
	}
	if !opt.LinkLibc {
		opt.LinkLibc = p.LinkLibc
	}
}

func archFromString(s string) int {
	switch s {
	case "x86_64":
		return util.X86_64
	case "x86_32":
		return util.X86_32
	case "aarch64":
		return util.Aarch64
	case "riscv64":
		return util.Riscv64
	case "riscv32":
		return util.Riscv32
	default:
		return util.UnknownArch
	}
}

func vendorFromString(s string) int {
	switch s {
	case "apple":
		return util.Apple
	case "pc":
		return util.PC
	case "ibm":
		return util.IBM
	case "suse":
		return util.SUSE
	case "amd":
		return util.AMD
	case "mips":
		return util.MIPS
	default:
		return util.UnknownVendor
	}
}

func osFromString(s string) int {
	switch s {
	case "linux":
		return util.Linux
	case "windows":
		return util.Windows
	case "mac", "darwin":
		return util.MAC
	default:
		return util.UnknownOS
	}
}

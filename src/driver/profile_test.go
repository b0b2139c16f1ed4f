package driver

import (
	"os"
	"path/filepath"
	"testing"

	"novac/src/util"
)

func TestLoadProfileMissingFileIsNotAnError(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing profile file must not be an error, got %s", err)
	}
	if p != (Profile{}) {
		t.Fatalf("expected the zero Profile, got %+v", p)
	}
}

func TestLoadProfileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novac.yaml")
	content := "arch: aarch64\nos: linux\nlink_libc: true\nlibc_include: /usr/include\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.Arch != "aarch64" || p.OS != "linux" || !p.LinkLibc || p.LibcInclude != "/usr/include" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

// Explicit CLI flags always win over the profile file (SPEC_FULL.md §4.11).
func TestApplyProfileDoesNotOverrideExplicitFlags(t *testing.T) {
	opt := util.Options{TargetArch: util.X86_64, LibcInclude: "/explicit/include"}
	p := Profile{Arch: "aarch64", LibcInclude: "/profile/include", LibcLib: "/profile/lib"}

	ApplyProfile(&opt, p)

	if opt.TargetArch != util.X86_64 {
		t.Fatalf("expected explicit TargetArch to survive, got %d", opt.TargetArch)
	}
	if opt.LibcInclude != "/explicit/include" {
		t.Fatalf("expected explicit LibcInclude to survive, got %q", opt.LibcInclude)
	}
	if opt.LibcLib != "/profile/lib" {
		t.Fatalf("expected the zero-valued LibcLib to be filled from the profile, got %q", opt.LibcLib)
	}
}

func TestApplyProfileFillsZeroFields(t *testing.T) {
	opt := util.Options{}
	p := Profile{Arch: "riscv64", OS: "linux", Environ: "musl", DynLinker: "/lib/ld-musl.so"}

	ApplyProfile(&opt, p)

	if opt.TargetArch != util.Riscv64 {
		t.Fatalf("expected TargetArch filled from profile, got %d", opt.TargetArch)
	}
	if opt.TargetOS != util.Linux {
		t.Fatalf("expected TargetOS filled from profile, got %d", opt.TargetOS)
	}
	if opt.Environ != "musl" || opt.DynLinker != "/lib/ld-musl.so" {
		t.Fatalf("expected Environ/DynLinker filled from profile, got %+v", opt)
	}
}

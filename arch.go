package mimic

// Arch describes the architecture of the program being modeled. Pointer
// width determines the width of address and size expressions; endianness
// determines the byte order of multi-byte loads and stores.
type Arch struct {
	Name         string
	PointerWidth uint // pointer width, in bits
	LittleEndian bool
}

// Predefined architectures.
var (
	AMD64  = Arch{Name: "amd64", PointerWidth: 64, LittleEndian: true}
	ARM    = Arch{Name: "arm", PointerWidth: 32, LittleEndian: true}
	ARM64  = Arch{Name: "arm64", PointerWidth: 64, LittleEndian: true}
	I386   = Arch{Name: "386", PointerWidth: 32, LittleEndian: true}
	MIPS   = Arch{Name: "mips", PointerWidth: 32, LittleEndian: false}
	MIPS64 = Arch{Name: "mips64", PointerWidth: 64, LittleEndian: false}
	PPC64  = Arch{Name: "ppc64", PointerWidth: 64, LittleEndian: false}
)

// ArchByName returns the predefined architecture with the given name.
func ArchByName(name string) (Arch, bool) {
	switch name {
	case "amd64":
		return AMD64, true
	case "arm":
		return ARM, true
	case "arm64":
		return ARM64, true
	case "386":
		return I386, true
	case "mips":
		return MIPS, true
	case "mips64":
		return MIPS64, true
	case "ppc64":
		return PPC64, true
	default:
		return Arch{}, false
	}
}

// PointerBytes returns the pointer width in bytes.
func (a Arch) PointerBytes() uint64 {
	return uint64(a.PointerWidth) / 8
}

// MaxAllocSize returns the maximum size of a single allocation.
func (a Arch) MaxAllocSize() uint {
	if a.PointerWidth == 32 {
		return 1 * 1024 * 1024 // 1MB
	}
	return 256 * 1024 * 1024 // 256MB
}

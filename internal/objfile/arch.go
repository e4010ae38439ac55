package objfile

import "debug/elf"

const unknownArch = "unknown"

// archName follows the LLVM triple architecture spelling so that reports line
// up with the names toolchains print.
func archName(m elf.Machine, class elf.Class, data elf.Data) string {
	is64 := class == elf.ELFCLASS64
	le := data == elf.ELFDATA2LSB
	pick := func(littleName, bigName string) string {
		if le {
			return littleName
		}
		return bigName
	}

	switch m {
	case elf.EM_X86_64:
		return "x86_64"
	case elf.EM_386, elf.EM_486:
		return "i386"
	case elf.EM_AARCH64:
		return pick("aarch64", "aarch64_be")
	case elf.EM_ARM:
		// big-endian ARM objects still report plain "arm"
		return "arm"
	case elf.EM_PPC:
		return pick("powerpcle", "powerpc")
	case elf.EM_PPC64:
		return pick("powerpc64le", "powerpc64")
	case elf.EM_MIPS:
		if is64 {
			return pick("mips64el", "mips64")
		}
		return pick("mipsel", "mips")
	case elf.EM_RISCV:
		if is64 {
			return "riscv64"
		}
		return "riscv32"
	case elf.EM_LOONGARCH:
		if is64 {
			return "loongarch64"
		}
		return "loongarch32"
	case elf.EM_S390:
		return "s390x"
	case elf.EM_SPARC, elf.EM_SPARC32PLUS:
		return pick("sparcel", "sparc")
	case elf.EM_SPARCV9:
		return "sparcv9"
	case elf.EM_BPF:
		return pick("bpfel", "bpfeb")
	case elf.EM_QDSP6:
		return "hexagon"
	case elf.EM_AVR:
		return "avr"
	case elf.EM_MSP430:
		return "msp430"
	case elf.EM_68K:
		return "m68k"
	case elf.EM_XTENSA:
		return "xtensa"
	}
	return unknownArch
}

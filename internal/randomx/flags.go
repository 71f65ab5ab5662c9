package randomx

// Flag is the RandomX initialization bitmask, opaque beyond the bits this
// package sets itself. See spec.md §6.4/§3 "RandomXFlags".
type Flag uint32

const (
	FlagDefault     Flag = 0
	FlagLargePages  Flag = 1 << 0
	FlagHardAES     Flag = 1 << 1
	FlagFullMem     Flag = 1 << 2
	FlagJIT         Flag = 1 << 3
	FlagSecure      Flag = 1 << 4
	FlagArgon2SSSE3 Flag = 1 << 5
	FlagArgon2AVX2  Flag = 1 << 6
	FlagArgon2      Flag = 1 << 7
)

// HashSize is the length in bytes of a RandomX hash output.
const HashSize = 32

// KeySize is the recommended length in bytes of a RandomX seed.
const KeySize = 32

// SelectFlags returns the flag set the engine uses to initialize RandomX
// for the given mode: auto-detected flags plus JIT always, plus full-memory
// when fastMode is set, per spec.md §4.3 step 1.
func SelectFlags(fastMode bool) Flag {
	flags := GetFlags() | FlagJIT
	if fastMode {
		flags |= FlagFullMem
	}
	return flags
}

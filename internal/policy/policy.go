// Package policy holds the small closed enums shared by the planner, the
// index store and the public Session config (spec §3, §6), kept in their
// own package (rather than the root zoe package) so internal components
// can depend on them without creating an import cycle back to zoe.
package policy

// SlicePolicy selects how the initial slice layout is computed (spec §4.6).
type SlicePolicy uint8

const (
	Auto SlicePolicy = iota
	FixedSize
	FixedNum
)

func (p SlicePolicy) String() string {
	switch p {
	case Auto:
		return "Auto"
	case FixedSize:
		return "FixedSize"
	case FixedNum:
		return "FixedNum"
	default:
		return "Unknown"
	}
}

// HashType is a supported digest algorithm for verification (spec §4.1).
type HashType uint8

const (
	MD5 HashType = iota
	CRC32
	SHA256
)

func (h HashType) String() string {
	switch h {
	case MD5:
		return "MD5"
	case CRC32:
		return "CRC32"
	case SHA256:
		return "SHA256"
	default:
		return "Unknown"
	}
}

// HashVerifyPolicy chooses when the target file is digested and compared
// (spec §4.9).
type HashVerifyPolicy uint8

const (
	VerifyDisabled HashVerifyPolicy = iota
	AlwaysVerify
	OnlyNoFileSize
)

// UncompletedSliceSavePolicy governs reconciliation of an incomplete slice
// layout against a new slice policy (spec §4.6).
type UncompletedSliceSavePolicy uint8

const (
	AlwaysDiscard UncompletedSliceSavePolicy = iota
	SaveExceptFailed
)

// State is the Session lifecycle state (spec §4.9).
type State int

const (
	Stopped State = iota
	Downloading
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Downloading:
		return "Downloading"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

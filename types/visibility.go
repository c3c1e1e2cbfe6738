package types

import "fmt"

type VisibilityLevel uint8

// Levels are ordered; a viewer allowed at one level is allowed at every lower one.
const (
	Hidden VisibilityLevel = iota
	CreatorOnly
	ParticipantsOnly
	Public
)

var levelNames = []string{"hidden", "creator_only", "participants_only", "public"}

func (l VisibilityLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

type VisibilityField uint8

const (
	FieldVoteCounts VisibilityField = iota
	FieldVoteDetails
	FieldVoterList
	FieldProgress
	FieldFinalResult

	NumVisibilityFields = 5
)

var fieldNames = []string{"vote_counts", "vote_details", "voter_list", "progress", "final_result"}

func (f VisibilityField) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

const (
	visibilityBits = 2
	VisibilityMask = uint16(1)<<(visibilityBits*NumVisibilityFields) - 1
)

// VisibilityConfig holds one level per field, indexed by VisibilityField.
type VisibilityConfig [NumVisibilityFields]VisibilityLevel

// AllPublic is the bitmap with every field Public.
var AllPublic = EncodeVisibility(VisibilityConfig{Public, Public, Public, Public, Public})

func EncodeVisibility(cfg VisibilityConfig) (bitmap uint16) {
	for i, l := range cfg {
		bitmap |= uint16(l&0x3) << (visibilityBits * i)
	}
	return
}

func DecodeVisibility(bitmap uint16) (cfg VisibilityConfig) {
	for i := range cfg {
		cfg[i] = VisibilityLevel(bitmap >> (visibilityBits * i) & 0x3)
	}
	return
}

type Viewer struct {
	IsCreator     bool
	IsParticipant bool
}

// CanView reports whether the viewer may see field under the given bitmap.
func CanView(bitmap uint16, field VisibilityField, v Viewer) bool {
	if field >= NumVisibilityFields {
		return false
	}
	switch DecodeVisibility(bitmap)[field] {
	case Public:
		return true
	case ParticipantsOnly:
		return v.IsParticipant || v.IsCreator
	case CreatorOnly:
		return v.IsCreator
	}
	return false
}

package coverage

import "bytes"

// Tristate is a three-valued logical type: Yes, No, or Unknown.
//
// Several coverage checks (policy-list confirmation, repair-context
// coverage, part-lookup coverage) cannot be collapsed to a plain bool
// without losing the "needs verification" state, so a nullable bool is
// not enough: null at the JSON boundary must be a deliberate third
// value, not an absence.
type Tristate int8

const (
	TristateUnknown Tristate = iota
	TristateYes
	TristateNo
)

// TristateFromBool lifts a plain bool into a Tristate.
func TristateFromBool(b bool) Tristate {
	if b {
		return TristateYes
	}
	return TristateNo
}

// Bool reports the boolean value and whether it was known.
func (t Tristate) Bool() (value bool, known bool) {
	switch t {
	case TristateYes:
		return true, true
	case TristateNo:
		return false, true
	default:
		return false, false
	}
}

// IsYes reports whether the tristate is confirmed true.
func (t Tristate) IsYes() bool { return t == TristateYes }

// IsNo reports whether the tristate is confirmed false.
func (t Tristate) IsNo() bool { return t == TristateNo }

// IsUnknown reports whether the tristate carries no information.
func (t Tristate) IsUnknown() bool { return t == TristateUnknown }

var (
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
	jsonNull  = []byte("null")
)

// MarshalJSON emits true/false/null, matching the Python source's
// True/False/None.
func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case TristateYes:
		return jsonTrue, nil
	case TristateNo:
		return jsonFalse, nil
	default:
		return jsonNull, nil
	}
}

// UnmarshalJSON accepts true/false/null.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, jsonTrue):
		*t = TristateYes
	case bytes.Equal(data, jsonFalse):
		*t = TristateNo
	default:
		*t = TristateUnknown
	}
	return nil
}

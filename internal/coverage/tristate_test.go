package coverage

import (
	"encoding/json"
	"testing"
)

func TestTristate_IsYes(t *testing.T) {
	tests := []struct {
		name string
		t    Tristate
		want bool
	}{
		{"yes", TristateYes, true},
		{"no", TristateNo, false},
		{"unknown", TristateUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.t.IsYes(); got != tt.want {
				t.Errorf("IsYes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTristate_String(t *testing.T) {
	tests := []struct {
		t    Tristate
		want string
	}{
		{TristateYes, "yes"},
		{TristateNo, "no"},
		{TristateUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTristate_JSONRoundTrip(t *testing.T) {
	for _, want := range []Tristate{TristateYes, TristateNo, TristateUnknown} {
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("Marshal(%v) error: %v", want, err)
		}
		var got Tristate
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", data, err)
		}
		if got != want {
			t.Errorf("round trip %v -> %s -> %v", want, data, got)
		}
	}
}

func TestTristate_UnmarshalJSON_UnknownOnGarbage(t *testing.T) {
	var got Tristate = TristateYes
	if err := json.Unmarshal([]byte(`"not a bool"`), &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got != TristateUnknown {
		t.Errorf("got %v, want TristateUnknown", got)
	}
}

package focus

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeSamples(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"object", `{"x":1,"y":2,"timestamp":3}`, 1, false},
		{"array", ` [{"x":1,"y":2,"timestamp":3},{"x":4,"y":5,"timestamp":6}]`, 2, false},
		{"empty", "  ", 0, true},
		{"empty array", "[]", 0, true},
		{"garbage", "{x:", 0, true},
		{"wrong type", `{"x":"left"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSamples([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
	if _, err := DecodeSamples(nil); !errors.Is(err, ErrNoSamples) {
		t.Errorf("nil input: err = %v, want ErrNoSamples", err)
	}
}

func TestFocusStateJSON(t *testing.T) {
	raw, err := json.Marshal(Transition{Changed: true, From: Focused, To: Distracted, At: 5})
	if err != nil {
		t.Fatal(err)
	}
	var back Transition
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.From != Focused || back.To != Distracted {
		t.Errorf("round trip = %+v from %s", back, raw)
	}
}

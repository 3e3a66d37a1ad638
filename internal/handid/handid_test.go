package handid

import (
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	id := New()
	if len(id) != 26 {
		t.Errorf("expected 26 characters, got %d", len(id))
	}
	if err := Validate(id); err != nil {
		t.Errorf("generated id failed validation: %v", err)
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestTimeSorted(t *testing.T) {
	// Inject a strictly advancing clock so ordering doesn't depend on the
	// test's wall-clock resolution.
	now := time.Unix(1700000000, 0)
	g := NewGenerator(nil, func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	})

	var ids []string
	for i := 0; i < 50; i++ {
		ids = append(ids, g.New())
	}
	for i := 1; i < len(ids); i++ {
		if strings.Compare(ids[i-1], ids[i]) >= 0 {
			t.Errorf("ids not time-sorted: %s >= %s", ids[i-1], ids[i])
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", New(), false},
		{"too short", "abc", true},
		{"too long", strings.Repeat("0", 27), true},
		{"bad first char", "z" + strings.Repeat("0", 25), true},
		{"excluded letter u", "0" + strings.Repeat("u", 25), true},
		{"uppercase rejected", "0" + strings.Repeat("A", 25), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

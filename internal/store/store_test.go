package store

import "testing"

func TestNewIDIsValid(t *testing.T) {
	id := NewID()
	if len(id) != 24 {
		t.Fatalf("expected 24 hex chars, got %q", id)
	}
	if !ValidID(id) {
		t.Fatalf("expected %q to be valid", id)
	}
	if NewID() == id {
		t.Fatalf("expected distinct ids")
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"", "abc", "zzzzzzzzzzzzzzzzzzzzzzzz", "507f1f77bcf86cd79943901", "507f1f77bcf86cd7994390111"} {
		if ValidID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
	if !ValidID("507f1f77bcf86cd799439011") {
		t.Errorf("expected well-formed id to be valid")
	}
}

func TestLimit(t *testing.T) {
	if Limit(0) != DefaultPostLimit || Limit(-3) != DefaultPostLimit || Limit(500) != DefaultPostLimit {
		t.Fatalf("expected out-of-range limits to clamp to default")
	}
	if Limit(5) != 5 {
		t.Fatalf("expected 5")
	}
}

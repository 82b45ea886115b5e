package reminders

import (
	"errors"
	"testing"
)

func TestAdmissionAdmitsUpToMax(t *testing.T) {
	t.Parallel()

	a := Admission{Max: 3}
	if err := a.Admit(2, 0); err != nil {
		t.Fatalf("Admit(2,0): %v", err)
	}
	if err := a.Admit(2, 1); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Admit(2,1)=%v, want ErrCapacityExceeded", err)
	}
	if err := a.Admit(3, 0); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Admit(3,0)=%v, want ErrCapacityExceeded", err)
	}
}

func TestAdmissionDefaultLimit(t *testing.T) {
	t.Parallel()

	var a Admission
	if err := a.Admit(DefaultMaxSchedules-1, 0); err != nil {
		t.Fatalf("below default: %v", err)
	}
	if err := a.Admit(DefaultMaxSchedules, 0); err == nil {
		t.Fatalf("at default: expected rejection")
	}
}

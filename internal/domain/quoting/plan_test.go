package quoting

import (
	"testing"

	"github.com/google/uuid"
)

func TestReservationKey(t *testing.T) {
	caseID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	runID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	if got, want := ReservationKey(caseID, nil, "P1"), caseID.String()+":none:P1"; got != want {
		t.Fatalf("nil run: got %q want %q", got, want)
	}
	if got, want := ReservationKey(caseID, &runID, "P2"), caseID.String()+":"+runID.String()+":P2"; got != want {
		t.Fatalf("with run: got %q want %q", got, want)
	}
}

package gpio

import (
	"testing"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

const (
	H = protocol.High
	L = protocol.Low
)

func TestAssemblerPairsAlternatingPhases(t *testing.T) {
	var a Assembler
	a.Add(H, 30000)
	a.Add(L, 4000)
	a.Add(H, 8100)
	a.Add(L, 8000)
	a.Add(H, 4100)

	got := a.Flush(nil)
	want := []protocol.Pulse{
		{Level0: H, Duration0: 30000, Level1: L, Duration1: 4000},
		{Level0: H, Duration0: 8100, Level1: L, Duration1: 8000},
		{Level0: H, Duration0: 4100, Level1: L, Duration1: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestAssemblerMergesSameLevel(t *testing.T) {
	var a Assembler
	a.Add(H, 10000)
	a.Add(H, 10000)
	a.Add(H, 5000)
	a.Add(H, 5000)
	a.Add(L, 4000)
	a.Add(L, 1000) // merges into the completed record's second half

	got := a.Flush(nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d: %v", len(got), got)
	}
	want := protocol.Pulse{Level0: H, Duration0: 30000, Level1: L, Duration1: 5000}
	if got[0] != want {
		t.Errorf("expected %v, got %v", want, got[0])
	}
}

func TestAssemblerIgnoresZeroPhases(t *testing.T) {
	var a Assembler
	a.Add(H, 0)
	a.Add(L, 0)
	if got := a.Flush(nil); len(got) != 0 {
		t.Errorf("expected no records, got %v", got)
	}
}

func TestAssemblerDrainKeepsOpenHalf(t *testing.T) {
	var a Assembler
	a.Add(H, 100)
	a.Add(L, 200)
	a.Add(H, 300)

	drained := a.Drain(nil)
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained record, got %d", len(drained))
	}
	if a.Len() != 0 {
		t.Errorf("expected empty after drain, got %d", a.Len())
	}

	a.Add(L, 400)
	rest := a.Flush(nil)
	want := protocol.Pulse{Level0: H, Duration0: 300, Level1: L, Duration1: 400}
	if len(rest) != 1 || rest[0] != want {
		t.Errorf("expected %v, got %v", want, rest)
	}
}

func TestPhasesFlattensInOrder(t *testing.T) {
	got := Phases([]protocol.Pulse{
		{Level0: H, Duration0: 1, Level1: L, Duration1: 2},
		{Level0: L, Duration0: 3, Level1: H, Duration1: 4},
	})
	want := []Phase{{H, 1}, {L, 2}, {L, 3}, {H, 4}}
	if len(got) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

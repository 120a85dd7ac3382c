package track

import "testing"

func TestAgedFieldInvalidUntilUpdate(t *testing.T) {
	var f AgedField[int]

	if f.Valid() {
		t.Error("Expected new field to be invalid")
	}
	if f.Value() != 0 {
		t.Errorf("Expected zero value before update, got %d", f.Value())
	}
	if f.UpdateAge(1000) != ^uint64(0) {
		t.Error("Expected maximum age for never-updated field")
	}
	if !f.Stale(0) {
		t.Error("Expected never-updated field to be stale")
	}
}

func TestAgedFieldChangedMovesOnlyOnNewValue(t *testing.T) {
	var f AgedField[int]

	f.Update(100, 1000)
	if !f.Valid() {
		t.Fatal("Expected field to be valid after update")
	}
	if f.Changed() != 1000 || f.Updated() != 1000 {
		t.Errorf("Expected changed=updated=1000, got changed=%d updated=%d", f.Changed(), f.Updated())
	}

	// Same value: updated moves, changed does not.
	f.Update(100, 2000)
	if f.Changed() != 1000 {
		t.Errorf("Expected changed to stay at 1000, got %d", f.Changed())
	}
	if f.Updated() != 2000 {
		t.Errorf("Expected updated to move to 2000, got %d", f.Updated())
	}

	// New value: both move.
	f.Update(200, 3000)
	if f.Changed() != 3000 || f.Updated() != 3000 {
		t.Errorf("Expected changed=updated=3000, got changed=%d updated=%d", f.Changed(), f.Updated())
	}
	if f.Value() != 200 {
		t.Errorf("Expected value 200, got %d", f.Value())
	}
}

func TestAgedFieldStaleness(t *testing.T) {
	var f AgedField[string]
	f.Update("x", 10000)

	if f.Stale(10000) {
		t.Error("Expected fresh field not to be stale")
	}
	if f.Stale(10000 + StaleMillis - 1) {
		t.Error("Expected field just under the threshold not to be stale")
	}
	if !f.Stale(10000 + StaleMillis) {
		t.Error("Expected field at the threshold to be stale")
	}

	// A clock that moved backwards reports zero age, not underflow.
	if f.UpdateAge(5000) != 0 {
		t.Errorf("Expected zero age for backwards clock, got %d", f.UpdateAge(5000))
	}
}

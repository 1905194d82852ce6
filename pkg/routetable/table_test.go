package routetable

import "testing"

func TestSetAndLookup(t *testing.T) {
	tbl := NewTable()
	tbl.Set("10.0.0.2", "1.2.3.4:9000")
	got, ok := tbl.Lookup("10.0.0.2")
	if !ok || got != "1.2.3.4:9000" {
		t.Fatalf("Lookup() = %q, %v", got, ok)
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	tbl := NewTable()
	tbl.Set("10.0.0.2", "1.2.3.4:9000")
	tbl.Set("10.0.0.3", "5.6.7.8:9000")
	tbl.DeleteByEndpoint("1.2.3.4:9000")

	if _, ok := tbl.Lookup("10.0.0.2"); ok {
		t.Error("Lookup() found a route that should have been removed")
	}
	if _, ok := tbl.Lookup("10.0.0.3"); !ok {
		t.Error("Lookup() lost an unrelated route")
	}
}

func TestLenAndDelete(t *testing.T) {
	tbl := NewTable()
	tbl.Set("10.0.0.2", "1.2.3.4:9000")
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
	tbl.Delete("10.0.0.2")
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}
}

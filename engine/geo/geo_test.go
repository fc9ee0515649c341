package geo

import (
	"math"
	"testing"
)

func TestHaversine_ZeroDistance(t *testing.T) {
	c := StateCoordinates["CA"]
	if d := Haversine(c, c); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// CA and NY centers are roughly 2,400 miles apart.
	d, ok := Distance("CA", "NY")
	if !ok {
		t.Fatalf("expected known states")
	}
	if d < 2000 || d > 3000 {
		t.Errorf("CA-NY distance = %v, want ~2400", d)
	}
}

func TestDistance_UnknownState(t *testing.T) {
	if _, ok := Distance("CA", "ZZ"); ok {
		t.Errorf("expected false for unknown state")
	}
}

func TestNearby_IncludesSelfFirst(t *testing.T) {
	near := Nearby("CA", DefaultMaxMiles)
	if len(near) == 0 || near[0] != "CA" {
		t.Fatalf("expected CA first, got %v", near)
	}
}

func TestNearby_NeighborsWithinRadius(t *testing.T) {
	near := Nearby("CA", DefaultMaxMiles)
	set := make(map[string]bool, len(near))
	for _, s := range near {
		set[s] = true
	}
	if !set["NV"] {
		t.Errorf("expected NV within 500mi of CA, got %v", near)
	}
	if set["NY"] {
		t.Errorf("did not expect NY within 500mi of CA")
	}
}

func TestNearby_SortedByDistance(t *testing.T) {
	near := Nearby("KS", DefaultMaxMiles)
	center := StateCoordinates["KS"]
	prev := -1.0
	for _, code := range near[1:] {
		d := Haversine(center, StateCoordinates[code])
		if d < prev {
			t.Fatalf("nearby list not sorted: %v", near)
		}
		prev = d
	}
}

func TestNearby_UnknownState(t *testing.T) {
	if near := Nearby("ZZ", DefaultMaxMiles); near != nil {
		t.Errorf("expected nil for unknown state, got %v", near)
	}
}

func TestNearby_LowercaseInput(t *testing.T) {
	near := Nearby("ca", DefaultMaxMiles)
	if len(near) == 0 || near[0] != "CA" {
		t.Errorf("expected lowercase input to normalise, got %v", near)
	}
}

func TestCodeForName(t *testing.T) {
	cases := map[string]string{
		"California":           "CA",
		" new york ":           "NY",
		"district of columbia": "DC",
	}
	for name, want := range cases {
		got, ok := CodeForName(name)
		if !ok || got != want {
			t.Errorf("CodeForName(%q) = %q, %v; want %q", name, got, ok, want)
		}
	}
	if _, ok := CodeForName("atlantis"); ok {
		t.Errorf("expected unknown name to miss")
	}
}

func TestStateTablesAgree(t *testing.T) {
	if len(StateCoordinates) != 51 {
		t.Errorf("expected 50 states + DC, got %d", len(StateCoordinates))
	}
	for name, code := range StateNames {
		if !IsState(code) {
			t.Errorf("name %q maps to unknown code %q", name, code)
		}
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	a, b := StateCoordinates["TX"], StateCoordinates["ME"]
	if d1, d2 := Haversine(a, b), Haversine(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("asymmetric distances: %v vs %v", d1, d2)
	}
}

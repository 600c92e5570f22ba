package validator

import (
	"testing"
)

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"abc", false},
		{" abc ", false},
	}
	for _, c := range cases {
		got := IsEmpty(c.input)
		if got != c.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestIsValidCoordinates(t *testing.T) {
	for _, lat := range []float64{-90, 0, -6.2, 90} {
		if !IsValidLatitude(lat) {
			t.Errorf("IsValidLatitude(%v) = false, want true", lat)
		}
	}
	for _, lat := range []float64{-90.01, 91, 180} {
		if IsValidLatitude(lat) {
			t.Errorf("IsValidLatitude(%v) = true, want false", lat)
		}
	}
	for _, lng := range []float64{-180, 0, 106.8, 180} {
		if !IsValidLongitude(lng) {
			t.Errorf("IsValidLongitude(%v) = false, want true", lng)
		}
	}
	for _, lng := range []float64{-180.5, 181} {
		if IsValidLongitude(lng) {
			t.Errorf("IsValidLongitude(%v) = true, want false", lng)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "office_id", Message: "required"},
		{Field: "latitude", Message: "out of range"},
	}
	got := errs.Error()
	want := "office_id: required; latitude: out of range"
	if got != want {
		t.Errorf("ValidationErrors.Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_ToMap(t *testing.T) {
	errs := ValidationErrors{
		{Field: "office_id", Message: "required"},
		{Field: "latitude", Message: "out of range"},
	}
	got := errs.ToMap()
	want := map[string]string{"office_id": "required", "latitude": "out of range"}
	if len(got) != len(want) {
		t.Errorf("ValidationErrors.ToMap() length = %d, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ValidationErrors.ToMap()[%q] = %q, want %q", k, got[k], v)
		}
	}
}

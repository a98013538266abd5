package schedule

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSortedDays(t *testing.T) {
	doc := Document{
		"FRI":     nil,
		"MONDAY":  nil,
		"WED":     nil,
		"Holiday": nil,
		"MON":     nil,
		"SUN":     nil,
	}
	got := SortedDays(doc)
	want := []string{"Holiday", "MON", "MONDAY", "WED", "FRI", "SUN"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortedDays = %v, want %v", got, want)
	}
}

func TestRank(t *testing.T) {
	cases := map[string]int{
		"MON": 0, "MONDAY": 0, "THU": 3, "THURSDAY": 3, "SUNDAY": 6, "mon": -1, "": -1,
	}
	for day, want := range cases {
		if got := Rank(day); got != want {
			t.Errorf("Rank(%q) = %d, want %d", day, got, want)
		}
	}
}

func TestWeekday(t *testing.T) {
	if wd, ok := Weekday("MON"); !ok || wd != time.Monday {
		t.Errorf("Weekday(MON) = %v, %v; want Monday, true", wd, ok)
	}
	if wd, ok := Weekday("SUNDAY"); !ok || wd != time.Sunday {
		t.Errorf("Weekday(SUNDAY) = %v, %v; want Sunday, true", wd, ok)
	}
	if _, ok := Weekday("XYZ"); ok {
		t.Error("Weekday(XYZ) ok = true, want false")
	}
}

func TestDocumentDecodesNullableFields(t *testing.T) {
	raw := `{"MON":[{"time":"9:00-10:00","course_name":"Algebra","course_code":null,"location":"B12"}],"TUE":[]}`
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.PeriodCount() != 1 {
		t.Fatalf("PeriodCount = %d, want 1", doc.PeriodCount())
	}
	p := doc["MON"][0]
	if p.CourseCode != nil {
		t.Errorf("CourseCode = %v, want nil", *p.CourseCode)
	}
	if p.CourseName == nil || *p.CourseName != "Algebra" {
		t.Errorf("CourseName = %v, want Algebra", p.CourseName)
	}
}

func TestMissingDays(t *testing.T) {
	name := "Algebra"
	doc := Document{
		"MONDAY": {{CourseName: &name}},
		"WED":    {},
	}
	got := MissingDays(doc, []string{"MON", "WED", "FRI"})
	want := []string{"WED", "FRI"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MissingDays = %v, want %v", got, want)
	}
}

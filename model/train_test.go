package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestTrainSpecBuildDefaults(t *testing.T) {
	tests := []struct {
		name        string
		spec        TrainSpec
		wantCat     Category
		wantTarget  float64
		wantBraking float64
	}{
		{"express", TrainSpec{Category: "Express", MaxSpeedKmh: 120}, CategoryExpress, 90, 0.8},
		{"express capped by max", TrainSpec{Category: "express", MaxSpeedKmh: 60}, CategoryExpress, 60, 0.8},
		{"local", TrainSpec{Category: "local", MaxSpeedKmh: 60}, CategoryLocal, 40, 0.8},
		{"goods", TrainSpec{Category: "goods", MaxSpeedKmh: 60}, CategoryGoods, 30, 0.6},
		{"empty is goods", TrainSpec{MaxSpeedKmh: 25}, CategoryGoods, 25, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := tt.spec.Build()
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if tr.Category != tt.wantCat {
				t.Fatalf("Category = %q, want %q", tr.Category, tt.wantCat)
			}
			if tr.TargetSpeedKmh != tt.wantTarget {
				t.Fatalf("TargetSpeedKmh = %v, want %v", tr.TargetSpeedKmh, tt.wantTarget)
			}
			if tr.BrakingRate != tt.wantBraking {
				t.Fatalf("BrakingRate = %v, want %v", tr.BrakingRate, tt.wantBraking)
			}
			if !tr.Dispatched {
				t.Fatalf("new trains should default to dispatched")
			}
			if tr.Priority != DefaultPriority {
				t.Fatalf("Priority = %d, want %d", tr.Priority, DefaultPriority)
			}
			if tr.SpeedKmh != 0 {
				t.Fatalf("SpeedKmh = %v, want 0", tr.SpeedKmh)
			}
		})
	}
}

func TestTrainSpecBuildRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		spec TrainSpec
	}{
		{"zero max speed", TrainSpec{Category: "local"}},
		{"negative max speed", TrainSpec{Category: "local", MaxSpeedKmh: -5}},
		{"zero braking", TrainSpec{Category: "local", MaxSpeedKmh: 60, BrakingRate: ptr(0.0)}},
		{"negative braking", TrainSpec{Category: "local", MaxSpeedKmh: 60, BrakingRate: ptr(-0.3)}},
		{"negative position", TrainSpec{Category: "local", MaxSpeedKmh: 60, PositionKm: -1}},
		{"unknown category", TrainSpec{Category: "monorail", MaxSpeedKmh: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.spec.Build(); !errors.Is(err, ErrInvalidTrain) {
				t.Fatalf("Build() error = %v, want ErrInvalidTrain", err)
			}
		})
	}
}

func TestTrainSpecExplicitOverrides(t *testing.T) {
	tr, err := TrainSpec{
		Category:       "express",
		MaxSpeedKmh:    100,
		PositionKm:     2.5,
		BrakingRate:    ptr(1.1),
		TargetSpeedKmh: ptr(75.0),
		Priority:       ptr(1),
		Dispatched:     ptr(false),
	}.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if tr.PositionKm != 2.5 || tr.BrakingRate != 1.1 || tr.TargetSpeedKmh != 75 || tr.Priority != 1 || tr.Dispatched {
		t.Fatalf("overrides not applied: %+v", tr)
	}
}

func TestDesiredLimitFallsBackToTarget(t *testing.T) {
	if got := (Train{MaxSpeedKmh: 80, TargetSpeedKmh: 40}).DesiredLimitKmh(); got != 80 {
		t.Fatalf("DesiredLimitKmh() = %v, want 80", got)
	}
	if got := (Train{TargetSpeedKmh: 40}).DesiredLimitKmh(); got != 40 {
		t.Fatalf("DesiredLimitKmh() = %v, want 40", got)
	}
}

func TestSegmentKeyIsDirectionless(t *testing.T) {
	a := Segment{A: "Toranagallu", B: "Ballari Junction"}
	b := Segment{A: "Ballari Junction", B: "Toranagallu"}
	if a.Key() != b.Key() {
		t.Fatalf("Key() differs: %v vs %v", a.Key(), b.Key())
	}
	if got := a.Canonical(); got != b {
		t.Fatalf("Canonical() = %v, want %v", got, b)
	}
}

func TestCategoryIDPrefix(t *testing.T) {
	if got := CategoryExpress.IDPrefix(); got != "Express_" {
		t.Fatalf("IDPrefix() = %q, want %q", got, "Express_")
	}
	if got := (TrainSpec{IDPrefix: "Freight-"}).Prefix(CategoryGoods); got != "Freight-" {
		t.Fatalf("Prefix() = %q, want %q", got, "Freight-")
	}
}

func TestSegmentJSONForms(t *testing.T) {
	out, err := json.Marshal(Segment{A: "Ballari Junction", B: "Signal_BLR_1"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `["Ballari Junction","Signal_BLR_1"]` {
		t.Fatalf("Marshal() = %s", out)
	}

	for _, in := range []string{`["X","Y"]`, `{"a":"X","b":"Y"}`} {
		var s Segment
		if err := json.Unmarshal([]byte(in), &s); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", in, err)
		}
		if s != (Segment{A: "X", B: "Y"}) {
			t.Fatalf("Unmarshal(%s) = %+v", in, s)
		}
	}

	var s Segment
	if err := json.Unmarshal([]byte(`["X"]`), &s); err == nil {
		t.Fatalf("Unmarshal of a one-node segment should fail")
	}
}

func TestTrainRequestSpecDefaults(t *testing.T) {
	var req TrainRequest
	if err := json.Unmarshal([]byte(`{"category":"local","priority":2}`), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	spec := req.Spec()
	if spec.MaxSpeedKmh != DefaultMaxSpeedKmh {
		t.Fatalf("MaxSpeedKmh = %v, want %v", spec.MaxSpeedKmh, DefaultMaxSpeedKmh)
	}
	if spec.Category != CategoryLocal || spec.Priority == nil || *spec.Priority != 2 {
		t.Fatalf("Spec() = %+v", spec)
	}
	if spec.Dispatched != nil || spec.BrakingRate != nil {
		t.Fatalf("Spec() resolved defaults early: %+v", spec)
	}
}

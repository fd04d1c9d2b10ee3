package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTrain is returned when train parameters fail validation.
var ErrInvalidTrain = errors.New("invalid train")

// Category is the service class of a train.
type Category string

const (
	CategoryExpress Category = "express"
	CategoryLocal   Category = "local"
	CategoryGoods   Category = "goods"
)

// Defaults applied at train creation.
const (
	DefaultPriority    = 3
	DefaultMaxSpeedKmh = 60.0
)

// ParseCategory normalises a user supplied category. An empty value
// selects goods.
func ParseCategory(raw string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case "":
		return CategoryGoods, nil
	case CategoryExpress, CategoryLocal, CategoryGoods:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidTrain, raw)
	}
}

// CruiseCapKmh is the cruise speed ceiling for the category.
func (c Category) CruiseCapKmh() float64 {
	switch c {
	case CategoryExpress:
		return 90
	case CategoryLocal:
		return 40
	default:
		return 30
	}
}

// DefaultBrakingRate is the service braking deceleration (m/s²) for the category.
func (c Category) DefaultBrakingRate() float64 {
	switch c {
	case CategoryExpress, CategoryLocal:
		return 0.8
	default:
		return 0.6
	}
}

// IDPrefix is the default id prefix, e.g. "Express_".
func (c Category) IDPrefix() string {
	s := string(c)
	if s == "" {
		return "_"
	}
	return strings.ToUpper(s[:1]) + s[1:] + "_"
}

// Train is a single train on the line. Speeds are km/h, positions km from
// the line origin, braking rate m/s².
type Train struct {
	ID             string   `json:"id"`
	Category       Category `json:"category"`
	PositionKm     float64  `json:"position_km"`
	SpeedKmh       float64  `json:"speed_kmh"`
	TargetSpeedKmh float64  `json:"target_speed_kmh"`
	MaxSpeedKmh    float64  `json:"max_speed_kmh"`
	BrakingRate    float64  `json:"braking_rate"`
	// Priority is recorded but never consulted: dispatch order is supplied
	// by the caller.
	Priority   int  `json:"priority"`
	Dispatched bool `json:"dispatched"`
}

// DesiredLimitKmh is the speed the train aims for with a clear line ahead.
func (t Train) DesiredLimitKmh() float64 {
	if t.MaxSpeedKmh > 0 {
		return t.MaxSpeedKmh
	}
	return t.TargetSpeedKmh
}

// TrainSpec describes a train to be created. Nil pointers select the
// category defaults.
type TrainSpec struct {
	Category       Category
	IDPrefix       string
	Priority       *int
	MaxSpeedKmh    float64
	PositionKm     float64
	BrakingRate    *float64
	TargetSpeedKmh *float64
	Dispatched     *bool
}

// Build validates the spec and returns a train with every default resolved.
// The ID is left empty; the registry assigns it.
func (s TrainSpec) Build() (Train, error) {
	category, err := ParseCategory(string(s.Category))
	if err != nil {
		return Train{}, err
	}
	if s.MaxSpeedKmh <= 0 {
		return Train{}, fmt.Errorf("%w: max_speed_kmh must be positive, got %g", ErrInvalidTrain, s.MaxSpeedKmh)
	}
	if s.PositionKm < 0 {
		return Train{}, fmt.Errorf("%w: position_km must not be negative, got %g", ErrInvalidTrain, s.PositionKm)
	}

	braking := category.DefaultBrakingRate()
	if s.BrakingRate != nil {
		braking = *s.BrakingRate
	}
	if braking <= 0 {
		return Train{}, fmt.Errorf("%w: braking_rate must be positive, got %g", ErrInvalidTrain, braking)
	}

	target := category.CruiseCapKmh()
	if s.TargetSpeedKmh != nil {
		target = *s.TargetSpeedKmh
		if target < 0 {
			return Train{}, fmt.Errorf("%w: target_speed_kmh must not be negative, got %g", ErrInvalidTrain, target)
		}
	}
	if target > s.MaxSpeedKmh {
		target = s.MaxSpeedKmh
	}

	priority := DefaultPriority
	if s.Priority != nil {
		priority = *s.Priority
	}
	dispatched := true
	if s.Dispatched != nil {
		dispatched = *s.Dispatched
	}

	return Train{
		Category:       category,
		PositionKm:     s.PositionKm,
		TargetSpeedKmh: target,
		MaxSpeedKmh:    s.MaxSpeedKmh,
		BrakingRate:    braking,
		Priority:       priority,
		Dispatched:     dispatched,
	}, nil
}

// Prefix returns the id prefix to use for the spec.
func (s TrainSpec) Prefix(category Category) string {
	if p := strings.TrimSpace(s.IDPrefix); p != "" {
		return p
	}
	return category.IDPrefix()
}

// TrainRequest is the wire form of a train creation request. ID is an
// optional id prefix; omitted fields take the category defaults and the
// max speed falls back to DefaultMaxSpeedKmh.
type TrainRequest struct {
	ID             string   `json:"id,omitempty"`
	Category       string   `json:"category,omitempty"`
	Priority       *int     `json:"priority,omitempty"`
	MaxSpeedKmh    *float64 `json:"max_speed_kmh,omitempty"`
	PositionKm     float64  `json:"position_km,omitempty"`
	BrakingRate    *float64 `json:"braking_rate,omitempty"`
	TargetSpeedKmh *float64 `json:"target_speed_kmh,omitempty"`
	Dispatched     *bool    `json:"dispatched,omitempty"`
}

// Spec converts the request into a TrainSpec.
func (r TrainRequest) Spec() TrainSpec {
	maxSpeed := DefaultMaxSpeedKmh
	if r.MaxSpeedKmh != nil {
		maxSpeed = *r.MaxSpeedKmh
	}
	return TrainSpec{
		Category:       Category(r.Category),
		IDPrefix:       r.ID,
		Priority:       r.Priority,
		MaxSpeedKmh:    maxSpeed,
		PositionKm:     r.PositionKm,
		BrakingRate:    r.BrakingRate,
		TargetSpeedKmh: r.TargetSpeedKmh,
		Dispatched:     r.Dispatched,
	}
}

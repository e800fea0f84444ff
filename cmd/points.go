package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kilianp07/grocerybot/core/model"
)

// pointValue is a pflag.Value parsing "x,y".
type pointValue struct {
	p *model.Point
}

func newPointValue(p *model.Point) *pointValue { return &pointValue{p: p} }

func (v *pointValue) String() string {
	if v.p == nil {
		return ""
	}
	return fmt.Sprintf("%g,%g", v.p.X, v.p.Y)
}

func (v *pointValue) Set(s string) error {
	p, err := parsePoint(s)
	if err != nil {
		return err
	}
	*v.p = p
	return nil
}

func (v *pointValue) Type() string { return "x,y" }

func parsePoint(s string) (model.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return model.Point{}, fmt.Errorf("point %q: want x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return model.Point{X: x, Y: y}, nil
}

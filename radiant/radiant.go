// Package radiant defines the contract shared by every node of the radiative
// transport chain.
//
// A chain is a singly linked list: a target at the root, optical components
// wrapping their parent, and a sensor consuming the head.  Nodes never change
// after construction, so evaluating a chain twice yields the same spectra.
package radiant

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/spectral"
)

// Size tells the sensor how to interpret the unit of a signal
type Size int

const (
	// Point sources are given as flux density, W / (m2 nm)
	Point Size = iota
	// Extended sources are given per solid angle, W / (m2 nm sr)
	Extended
)

func (s Size) String() string {
	if s == Extended {
		return "extended"
	}
	return "point"
}

// ParseSize parses "point" or "extended", case insensitive
func ParseSize(s string) (Size, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "point":
		return Point, nil
	case "extended":
		return Extended, nil
	}
	return Point, errors.Errorf("unknown target size '%s'", s)
}

// Signal is what a node hands downstream
type Signal struct {
	Qty  *spectral.Qty
	Size Size

	// Obstruction is the fraction of the aperture blocked along the chain,
	// summed over all components
	Obstruction float64
}

// Radiant is a node of the chain
type Radiant interface {
	// Signal returns the signal leaving the node
	Signal() (Signal, error)

	// Background returns the background radiance leaving the node, in
	// W / (m2 nm sr)
	Background() (*spectral.Qty, error)
}

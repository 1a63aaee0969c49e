// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"strings"
)

// DevicePair is one managed GPU function and the bridge it sits behind.
type DevicePair struct {
	// Name is "<vendor> - <product>" of the display function.
	Name string `json:"name"`

	// Device is the raw PCI address of the display function.
	Device string `json:"device"`

	// Bridge is the raw PCI address of the immediate parent, which is
	// powered before and released after the device.
	Bridge string `json:"bridge"`
}

// Filter selects the devices of interest.
type Filter struct {
	// Classes are lshw class names ("display"), compared
	// case-insensitively.
	Classes []string

	// Vendors are substrings matched case-insensitively against the
	// vendor string ("nvidia" matches "NVIDIA Corporation").
	Vendors []string
}

// Match reports whether node has one of the configured classes and a
// vendor containing one of the configured substrings.
func (f Filter) Match(node *Node) bool {
	class := strings.ToLower(node.Class)
	classMatched := false
	for _, candidate := range f.Classes {
		if candidate != "" && strings.ToLower(candidate) == class {
			classMatched = true
			break
		}
	}
	if !classMatched {
		return false
	}

	vendor := strings.ToLower(node.Vendor)
	for _, candidate := range f.Vendors {
		// An empty substring would match every vendor.
		if candidate != "" && strings.Contains(vendor, strings.ToLower(candidate)) {
			return true
		}
	}
	return false
}

// Collect walks the tree rooted at root depth-first in source order and
// returns a pair for every matching node whose parent and own addresses
// both resolve. The root itself has no parent and is never emitted.
func Collect(root *Node, filter Filter) []DevicePair {
	var pairs []DevicePair
	if root == nil {
		return pairs
	}
	collect(root, filter, &pairs)
	return pairs
}

func collect(parent *Node, filter Filter, pairs *[]DevicePair) {
	for _, child := range parent.Children {
		if child == nil {
			continue
		}
		if filter.Match(child) {
			if pair, ok := newPair(parent, child); ok {
				*pairs = append(*pairs, pair)
			}
		}
		collect(child, filter, pairs)
	}
}

// newPair builds a pair from a matching child and its parent. A pair
// missing either address is dropped whole rather than half-populated.
func newPair(parent, child *Node) (DevicePair, bool) {
	bridge, ok := parent.Address()
	if !ok {
		return DevicePair{}, false
	}
	device, ok := child.Address()
	if !ok {
		return DevicePair{}, false
	}
	return DevicePair{
		Name:   child.Vendor + " - " + child.Product,
		Device: device,
		Bridge: bridge,
	}, true
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// busPrefix marks a PCI bus address in lshw's businfo field, e.g.
// "pci@0000:01:00.0". The power-control filesystem wants the raw
// address after the prefix.
const busPrefix = "pci@"

// Node is one entry of the lshw hardware tree.
type Node struct {
	ID       string  `json:"id"`
	Class    string  `json:"class"`
	Vendor   string  `json:"vendor"`
	Product  string  `json:"product"`
	BusInfo  string  `json:"businfo"`
	Children []*Node `json:"children"`
}

// Address returns the raw PCI address of the node and whether it has
// one. Nodes without a pci@ businfo (the machine root, CPU, memory)
// have no address.
func (n *Node) Address() (string, bool) {
	address, found := strings.CutPrefix(n.BusInfo, busPrefix)
	if !found || address == "" {
		return "", false
	}
	return address, true
}

// Parse decodes lshw -json output. Some lshw releases emit trailing
// commas, which are stripped before decoding. Depending on the version
// and the -class flags, the top level is either the machine node or an
// array of nodes; an array is wrapped in an unnamed root so callers
// always get a single tree. A null or empty object is an error.
func Parse(data []byte) (*Node, error) {
	cleaned := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("parsing lshw output: empty document")
	}

	if cleaned[0] == '[' {
		var nodes []*Node
		if err := json.Unmarshal(cleaned, &nodes); err != nil {
			return nil, fmt.Errorf("parsing lshw output: %w", err)
		}
		return &Node{Children: nodes}, nil
	}

	var root Node
	if err := json.Unmarshal(cleaned, &root); err != nil {
		return nil, fmt.Errorf("parsing lshw output: %w", err)
	}
	// A JSON null or {} decodes without error but describes no hardware.
	if root.ID == "" && root.Class == "" && root.Vendor == "" && root.Product == "" &&
		root.BusInfo == "" && len(root.Children) == 0 {
		return nil, fmt.Errorf("parsing lshw output: no hardware tree")
	}
	return &root, nil
}

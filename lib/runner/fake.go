// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"strings"
	"sync"
)

// Call records one invocation seen by a Fake.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line, e.g. "modprobe --remove nvidia".
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Response is what a Fake returns for a matching command.
type Response struct {
	Result Result
	Err    error
}

// Fake is a scripted Runner for tests. Responses are keyed by the full
// command line (Call.String). Unscripted commands succeed with empty
// output.
type Fake struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []Call
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{responses: make(map[string]Response)}
}

// Script sets the response for a command line.
func (f *Fake) Script(commandLine string, response Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[commandLine] = response
}

// Run records the call and returns the scripted response.
func (f *Fake) Run(_ context.Context, name string, args ...string) (Result, error) {
	call := Call{Name: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	response := f.responses[call.String()]
	return response.Result, response.Err
}

// Calls returns the command lines run so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.calls))
	for i, call := range f.calls {
		lines[i] = call.String()
	}
	return lines
}

// Reset forgets recorded calls but keeps the script.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

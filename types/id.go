package types

import (
	"fmt"
	"strings"
)

// TestID is the stable fully-qualified identity of a test node. It is built
// from the declaring module, the enclosing type path and the function
// signature, joined by '/' (e.g. "mypkg/FooSuite/testBar(x:)"). IDs are
// unique within a run and are used as mapping keys; they never change after
// discovery.
type TestID string

func (id TestID) String() string {
	return string(id)
}

// Elements returns the path elements of the identity, outermost first.
// Empty elements are dropped.
func (id TestID) Elements() []string {
	parts := strings.Split(string(id), "/")
	elements := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			elements = append(elements, p)
		}
	}
	return elements
}

// Depth returns the nesting depth of the identity (0 for top-level nodes).
func (id TestID) Depth() int {
	elements := id.Elements()
	if len(elements) <= 1 {
		return 0
	}
	return len(elements) - 1
}

// Name returns the leaf element of the identity.
func (id TestID) Name() string {
	elements := id.Elements()
	if len(elements) == 0 {
		return ""
	}
	return elements[len(elements)-1]
}

// Validate checks that the identity is well-formed: non-empty, with no
// empty path elements.
func (id TestID) Validate() error {
	if id == "" {
		return fmt.Errorf("test identity cannot be empty")
	}
	for i, part := range strings.Split(string(id), "/") {
		if part == "" {
			return fmt.Errorf("test identity %q has an empty path element at index %d", id, i)
		}
	}
	return nil
}

// JoinID builds a TestID from path elements, skipping empty ones.
func JoinID(elements ...string) TestID {
	parts := make([]string, 0, len(elements))
	for _, e := range elements {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return TestID(strings.Join(parts, "/"))
}

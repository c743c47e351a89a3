package session

import (
	"testing"

	"github.com/pixil98/go-statesync/internal/rng"
	"github.com/pixil98/go-testutil"
)

func TestDefinition_Validate(t *testing.T) {
	setup := func([]string, *rng.Source) State { return State{} }
	noop := func(State, Context, any) error { return nil }

	tests := map[string]struct {
		def    *Definition
		expErr string
	}{
		"valid": {
			def: &Definition{Setup: setup, Actions: map[string]Action{"go": {Apply: noop}}},
		},
		"no actions": {
			def: &Definition{Setup: setup},
		},
		"nil definition": {
			expErr: "definition is nil",
		},
		"missing setup": {
			def:    &Definition{},
			expErr: "setup is required",
		},
		"missing apply": {
			def:    &Definition{Setup: setup, Actions: map[string]Action{"go": {}}},
			expErr: `action "go": apply is required`,
		},
		"empty action name": {
			def:    &Definition{Setup: setup, Actions: map[string]Action{"": {Apply: noop}}},
			expErr: "action name cannot be empty",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.expErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			testutil.AssertErrorContains(t, err, tt.expErr)
		})
	}
}

func TestDefinition_ActionNames(t *testing.T) {
	noop := func(State, Context, any) error { return nil }
	def := &Definition{Actions: map[string]Action{"b": {Apply: noop}, "a": {Apply: noop}, "c": {Apply: noop}}}
	testutil.AssertEqual(t, "names", def.ActionNames(), []string{"a", "b", "c"})
}

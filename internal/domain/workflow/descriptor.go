// Package workflow defines run shape descriptors: the declared stages,
// steps and branches that a run's progress events are attributed to.
package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrKeyRequired      = errors.New("workflow key is required")
	ErrNoStages         = errors.New("workflow must have at least one stage")
	ErrStageMissingName = errors.New("stage name is required")
	ErrInvalidMode      = errors.New("invalid stage mode")
	ErrDuplicateStage   = errors.New("duplicate stage name")
	ErrStageNoSteps     = errors.New("stage must have at least one step")
	ErrStepMissingName  = errors.New("step name is required")
	ErrDuplicateStep    = errors.New("duplicate step name within stage")
)

// Mode declares how a stage executes its steps.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Descriptor declares the shape of a workflow: its stages in execution
// order and the steps inside each. Descriptors are loaded from YAML or
// registered over the API; they never change after registration.
type Descriptor struct {
	Key         string  `json:"key" yaml:"key"`
	Name        string  `json:"name,omitempty" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Stages      []Stage `json:"stages" yaml:"stages"`
}

// Stage is one phase of a workflow. Parallel stages run their steps as
// concurrently streaming branches; sequential stages run them in order.
type Stage struct {
	Name  string `json:"name" yaml:"name"`
	Mode  Mode   `json:"mode,omitempty" yaml:"mode"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step is one unit of work inside a stage, optionally bound to a named
// agent. The agent key disambiguates branches when producers do not
// emit step names.
type Step struct {
	Name     string `json:"name" yaml:"name"`
	AgentKey string `json:"agent_key,omitempty" yaml:"agent_key"`
}

// Validate checks the descriptor for structural correctness. An empty
// stage mode means sequential.
func (d *Descriptor) Validate() error {
	if d.Key == "" {
		return ErrKeyRequired
	}
	if len(d.Stages) == 0 {
		return ErrNoStages
	}

	stageNames := make(map[string]bool, len(d.Stages))
	for i, st := range d.Stages {
		if st.Name == "" {
			return fmt.Errorf("stage %d: %w", i, ErrStageMissingName)
		}
		if stageNames[st.Name] {
			return fmt.Errorf("stage %q: %w", st.Name, ErrDuplicateStage)
		}
		stageNames[st.Name] = true

		switch st.Mode {
		case "", ModeSequential, ModeParallel:
			// ok
		default:
			return fmt.Errorf("stage %q: %w", st.Name, ErrInvalidMode)
		}

		if len(st.Steps) == 0 {
			return fmt.Errorf("stage %q: %w", st.Name, ErrStageNoSteps)
		}
		stepNames := make(map[string]bool, len(st.Steps))
		for j, sp := range st.Steps {
			if sp.Name == "" {
				return fmt.Errorf("stage %q step %d: %w", st.Name, j, ErrStepMissingName)
			}
			if stepNames[sp.Name] {
				return fmt.Errorf("stage %q step %q: %w", st.Name, sp.Name, ErrDuplicateStep)
			}
			stepNames[sp.Name] = true
		}
	}

	return nil
}

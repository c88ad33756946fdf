package agent

import "github.com/bgunyel/ragnar/workflow"

// KeyMaxIterations is the RunConfig key bounding completions per run.
const KeyMaxIterations = "max_iterations"

const DefaultMaxIterations = 15

const DefaultInstructions = "You are a smart and helpful business intelligence assistant."

const deepAgentInstructions = `

For requests that need several steps, plan with the write_todos tool first, keep exactly one task in_progress, mark tasks completed as soon as they are done and use read_todos to stay on track.`

// Options configures the agent loop.
type Options struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxIterations int
	Instructions  string
	DeepAgent     bool
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Instructions == "" {
		o.Instructions = DefaultInstructions
	}
	return o
}

// SystemPrompt is the first message of every conversation.
func (o Options) SystemPrompt() string {
	o = o.withDefaults()
	if o.DeepAgent {
		return o.Instructions + deepAgentInstructions
	}
	return o.Instructions
}

func (o Options) RunConfig() workflow.RunConfig {
	o = o.withDefaults()
	return workflow.NewRunConfig(map[string]any{
		KeyMaxIterations: o.MaxIterations,
	})
}

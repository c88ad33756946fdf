// Package agent implements the tool-calling agent loop and the business
// intelligence agent built on it.
//
// A Loop is a two-node graph: llm_call asks the model for the next step and
// tools_call executes the tool calls it requested. The should_continue
// router ends the run when the model answers without tool calls or when
// max_iterations completions have been made.
//
// Tools are registered in a Toolbox as a schema plus a ToolHandler. Unknown
// tool names and malformed arguments are reported back to the model as tool
// results; any other handler error aborts the run.
//
// Deep-agent mode adds write_todos and read_todos, which keep a task list in
// the run state.
package agent

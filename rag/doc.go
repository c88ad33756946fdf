// Package rag answers questions with retrieval-augmented generation
// workflows built on the workflow engine.
//
// Three variants share one set of nodes:
//
//   - basic: retrieve, then generate.
//   - feedback: grade each retrieved document and rewrite the query until
//     enough relevant documents are collected or the retrieval ceiling is
//     reached.
//   - self_rag: route the question to retrieval or internal knowledge,
//     then additionally grade the answer for grounding and usefulness,
//     regenerating or re-retrieving within their ceilings.
//
// Graders answer "yes" or "no". Any other value, or a grade a router needs
// that no node has set, aborts the run with workflow.ErrStateConsistency.
package rag

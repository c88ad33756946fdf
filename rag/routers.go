package rag

import (
	"context"

	"github.com/bgunyel/ragnar/workflow"
)

// Route labels.
const (
	LabelVectorstore  workflow.Label = "vectorstore"
	LabelInternal     workflow.Label = "internal"
	LabelRelevant     workflow.Label = "relevant"
	LabelNotRelevant  workflow.Label = "not relevant"
	LabelGrounded     workflow.Label = "grounded"
	LabelNotGrounded  workflow.Label = "not grounded"
	LabelUseful       workflow.Label = "useful"
	LabelNotUseful    workflow.Label = "not useful"
	LabelMaxIteration workflow.Label = "max_iter"
)

func questionRouter() workflow.Router[*State] {
	return workflow.Router[*State]{
		Name:   "question",
		Labels: []workflow.Label{LabelVectorstore, LabelInternal},
		Decide: func(_ context.Context, s *State, _ workflow.RunConfig) (workflow.Label, error) {
			switch s.Datasource {
			case DatasourceVectorstore:
				return LabelVectorstore, nil
			case DatasourceInternal:
				return LabelInternal, nil
			case DatasourceUnset:
				return "", workflow.StateError("datasource not set before question routing")
			default:
				return "", workflow.StateError("unknown datasource %q", s.Datasource)
			}
		},
	}
}

// documentsRouter stops retrying once enough relevant documents are
// collected or the retrieval ceiling is reached, in that order.
func documentsRouter() workflow.Router[*State] {
	return workflow.Router[*State]{
		Name:   "documents",
		Labels: []workflow.Label{LabelRelevant, LabelNotRelevant, LabelMaxIteration},
		Decide: func(_ context.Context, s *State, _ workflow.RunConfig) (workflow.Label, error) {
			return binary(s.DocumentsGrade, "documents", LabelRelevant, LabelNotRelevant)
		},
		Guards: []workflow.IterationGuard[*State]{
			{
				Name:    "enough_documents",
				Count:   func(s *State) int { return len(s.GoodDocuments) },
				Ceiling: workflow.CeilingFrom(KeyRetrievedDocuments, DefaultRetrievedDocuments),
				Label:   LabelRelevant,
			},
			{
				Name:    "max_retrieval_iterations",
				Count:   func(s *State) int { return s.RetrievalIteration },
				Ceiling: workflow.CeilingFrom(KeyMaxRetrievalIterations, DefaultMaxRetrievalIterations),
				Label:   LabelMaxIteration,
			},
		},
		Exits: []workflow.Label{LabelRelevant},
	}
}

func hallucinationRouter() workflow.Router[*State] {
	return workflow.Router[*State]{
		Name:   "hallucination",
		Labels: []workflow.Label{LabelGrounded, LabelNotGrounded, LabelMaxIteration},
		Decide: func(_ context.Context, s *State, _ workflow.RunConfig) (workflow.Label, error) {
			return binary(s.HallucinationGrade, "hallucination", LabelGrounded, LabelNotGrounded)
		},
		Guards: []workflow.IterationGuard[*State]{{
			Name:    "max_generation_iterations",
			Count:   func(s *State) int { return s.GenerationIteration },
			Ceiling: workflow.CeilingFrom(KeyMaxGenerationIterations, DefaultMaxGenerationIterations),
			Label:   LabelMaxIteration,
		}},
		Exits: []workflow.Label{LabelGrounded},
	}
}

func usefulnessRouter() workflow.Router[*State] {
	return workflow.Router[*State]{
		Name:   "usefulness",
		Labels: []workflow.Label{LabelUseful, LabelNotUseful, LabelMaxIteration},
		Decide: func(_ context.Context, s *State, _ workflow.RunConfig) (workflow.Label, error) {
			return binary(s.AnswerGrade, "answer", LabelUseful, LabelNotUseful)
		},
		Guards: []workflow.IterationGuard[*State]{{
			Name:    "max_retrieval_iterations",
			Count:   func(s *State) int { return s.RetrievalIteration },
			Ceiling: workflow.CeilingFrom(KeyMaxRetrievalIterations, DefaultMaxRetrievalIterations),
			Label:   LabelMaxIteration,
		}},
		Exits: []workflow.Label{LabelUseful},
	}
}

func binary(g Grade, what string, yes, no workflow.Label) (workflow.Label, error) {
	switch g {
	case GradeYes:
		return yes, nil
	case GradeNo:
		return no, nil
	case GradeUnset:
		return "", workflow.StateError("%s grade not set", what)
	default:
		return "", workflow.StateError("unknown %s grade %q", what, g)
	}
}

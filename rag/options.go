package rag

import (
	"fmt"
	"strings"

	"github.com/bgunyel/ragnar/workflow"
)

// Variant selects the graph.
type Variant string

const (
	VariantBasic    Variant = "basic"
	VariantFeedback Variant = "feedback"
	VariantSelfRAG  Variant = "self_rag"
)

// ParseVariant accepts the variant names with - or _ separators.
func ParseVariant(s string) (Variant, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "basic":
		return VariantBasic, nil
	case "feedback":
		return VariantFeedback, nil
	case "self_rag", "selfrag":
		return VariantSelfRAG, nil
	default:
		return "", fmt.Errorf("unknown rag variant %q (supported: basic, feedback, self_rag)", s)
	}
}

// RunConfig keys read by the RAG routers.
const (
	KeyRetrievedDocuments      = "retrieved_documents"
	KeyMaxRetrievalIterations  = "max_retrieval_iterations"
	KeyMaxGenerationIterations = "max_generation_iterations"
)

const (
	DefaultRetrievedDocuments      = 3
	DefaultMaxRetrievalIterations  = 2
	DefaultMaxGenerationIterations = 2
)

// Options configures a Pipeline.
type Options struct {
	Variant Variant
	// LanguageModel writes answers; ReasoningModel routes, grades and
	// rewrites. Either falls back to the other when empty.
	LanguageModel  string
	ReasoningModel string
	Temperature    float64

	RetrievedDocuments      int
	MaxRetrievalIterations  int
	MaxGenerationIterations int

	// Topics describe what the retriever covers; the self_rag question
	// router sends everything else to internal knowledge.
	Topics []string
}

// DefaultOptions returns the self_rag defaults.
func DefaultOptions() Options {
	return Options{
		Variant:                 VariantSelfRAG,
		RetrievedDocuments:      DefaultRetrievedDocuments,
		MaxRetrievalIterations:  DefaultMaxRetrievalIterations,
		MaxGenerationIterations: DefaultMaxGenerationIterations,
	}
}

func (o Options) withDefaults() Options {
	if o.Variant == "" {
		o.Variant = VariantSelfRAG
	}
	if o.RetrievedDocuments <= 0 {
		o.RetrievedDocuments = DefaultRetrievedDocuments
	}
	if o.MaxRetrievalIterations <= 0 {
		o.MaxRetrievalIterations = DefaultMaxRetrievalIterations
	}
	if o.MaxGenerationIterations <= 0 {
		o.MaxGenerationIterations = DefaultMaxGenerationIterations
	}
	if o.LanguageModel == "" {
		o.LanguageModel = o.ReasoningModel
	}
	if o.ReasoningModel == "" {
		o.ReasoningModel = o.LanguageModel
	}
	return o
}

// RunConfig exposes the ceilings to the routers.
func (o Options) RunConfig() workflow.RunConfig {
	o = o.withDefaults()
	return workflow.NewRunConfig(map[string]any{
		KeyRetrievedDocuments:      o.RetrievedDocuments,
		KeyMaxRetrievalIterations:  o.MaxRetrievalIterations,
		KeyMaxGenerationIterations: o.MaxGenerationIterations,
	})
}

package rag

import (
	"github.com/bgunyel/ragnar/llm"
)

// Grade is a binary grader verdict.
type Grade string

const (
	// GradeUnset means no grader has run yet.
	GradeUnset Grade = ""
	GradeYes   Grade = "yes"
	GradeNo    Grade = "no"
)

// Datasource is the question router's decision.
type Datasource string

const (
	DatasourceUnset       Datasource = ""
	DatasourceVectorstore Datasource = "vectorstore"
	DatasourceInternal    Datasource = "internal"
)

// Document is one retrieved passage.
type Document struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// State is threaded through every RAG node. Question is the user's
// question; Query is what the retriever searches for and is what
// rewrite_question changes.
type State struct {
	Question string `json:"question"`
	Query    string `json:"query"`

	Documents     []Document `json:"documents"`
	GoodDocuments []Document `json:"good_documents"`
	Generation    string     `json:"generation"`
	Steps         []string   `json:"steps"`

	RetrievalIteration  int `json:"retrieval_iteration"`
	GenerationIteration int `json:"generation_iteration"`

	DocumentsGrade     Grade      `json:"documents_grade"`
	HallucinationGrade Grade      `json:"hallucination_grade"`
	AnswerGrade        Grade      `json:"answer_grade"`
	Datasource         Datasource `json:"datasource"`

	Usage llm.Usage `json:"usage"`
}

// NewState starts a run for question.
func NewState(question string) *State {
	return &State{
		Question: question,
		Query:    question,
		Usage:    llm.Usage{},
	}
}

func (s *State) step(name string) {
	s.Steps = append(s.Steps, name)
}

func (s *State) addUsage(resp *llm.ChatResponse) {
	s.Usage = s.Usage.Merge(resp.ModelUsage())
}

// Node names.
const (
	NodeRouteQuestion      = "route_question"
	NodeInternalAnswer     = "internal_answer"
	NodeRetrieve           = "retrieve"
	NodeGradeDocuments     = "grade_documents"
	NodeRewriteQuestion    = "rewrite_question"
	NodeGenerate           = "generate"
	NodeGradeHallucination = "grade_hallucination"
	NodeGradeAnswer        = "grade_answer"
	NodeReset              = "reset"
)

// ResetGeneration is the answer written when the usefulness ceiling is hit.
const ResetGeneration = "I could not find the answer [reset generation]"

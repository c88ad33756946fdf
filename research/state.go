package research

import (
	"fmt"
	"strings"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/types"
)

// SearchType selects the query and summary prompts.
type SearchType string

const (
	SearchTypeTopic   SearchType = "topic"
	SearchTypeCompany SearchType = "company"
	SearchTypePerson  SearchType = "person"
)

// Subject is what a run researches.
type Subject struct {
	Type SearchType `json:"type"`
	// Name is the topic, the company name or the person's name.
	Name string `json:"name"`
	// Company narrows a person search.
	Company string `json:"company,omitempty"`
}

// Topic renders the subject as a one-line description for prompts.
func (s Subject) Topic() string {
	switch s.Type {
	case SearchTypeCompany:
		return fmt.Sprintf("the company %s", s.Name)
	case SearchTypePerson:
		if s.Company != "" {
			return fmt.Sprintf("%s of %s", s.Name, s.Company)
		}
		return s.Name
	default:
		return s.Name
	}
}

func (s Subject) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return types.NewError(types.ErrInvalidRequest, "research subject name is required")
	}
	switch s.Type {
	case SearchTypeTopic, SearchTypeCompany, SearchTypePerson:
		return nil
	default:
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown search type %q", s.Type))
	}
}

// Review is the reviewer's verdict on the current summary.
type Review string

const (
	ReviewUnset  Review = ""
	ReviewRevise Review = "revise"
	ReviewDone   Review = "done"
)

// State flows through the research graph.
type State struct {
	Subject       Subject   `json:"subject"`
	SearchQueries []string  `json:"search_queries"`
	Queries       []string  `json:"queries"`
	Sources       string    `json:"sources"`
	SourceCount   int       `json:"source_count"`
	Content       string    `json:"content"`
	KnowledgeGap  string    `json:"knowledge_gap,omitempty"`
	Review        Review    `json:"review"`
	Iteration     int       `json:"iteration"`
	Steps         []string  `json:"steps"`
	Usage         llm.Usage `json:"usage"`
}

func NewState(subject Subject) *State {
	return &State{Subject: subject, Usage: llm.Usage{}}
}

func (s *State) step(name string) {
	s.Steps = append(s.Steps, name)
}

func (s *State) addUsage(resp *llm.ChatResponse) {
	s.Usage = s.Usage.Merge(resp.ModelUsage())
}

// Node names.
const (
	NodeQueryWriter     = "query_writer"
	NodeWebSearch       = "web_search"
	NodeSummaryWriter   = "summary_writer"
	NodeSummaryReviewer = "summary_reviewer"
)

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/research"
	"github.com/bgunyel/ragnar/storage"
	"github.com/bgunyel/ragnar/types"
)

// Tool names of the business intelligence agent.
const (
	ToolResearchCompany = "research_company"
	ToolResearchPerson  = "research_person"
	ToolSaveCompany     = "save_company"
	ToolFindCompany     = "find_company"
	ToolListCompanies   = "list_companies"
	ToolSavePerson      = "save_person"
	ToolFindPerson      = "find_person"
)

const defaultListLimit = 20

// Researcher runs the research sub-workflow.
type Researcher interface {
	Research(ctx context.Context, runID string, subject research.Subject) (*research.Report, error)
}

// EntityStore persists researched companies and persons.
type EntityStore interface {
	CreateCompany(ctx context.Context, c *storage.Company) error
	UpdateCompany(ctx context.Context, c *storage.Company) error
	CompanyByID(ctx context.Context, id uint) (*storage.Company, error)
	CompaniesByName(ctx context.Context, name string) ([]storage.Company, error)
	ListCompanies(ctx context.Context, limit, offset int) ([]storage.Company, error)
	CreatePerson(ctx context.Context, p *storage.Person) error
	UpdatePerson(ctx context.Context, p *storage.Person) error
	PersonByID(ctx context.Context, id uint) (*storage.Person, error)
	PersonsByName(ctx context.Context, name string) ([]storage.Person, error)
}

// ResearchTools returns research_company and research_person.
func ResearchTools(r Researcher) []Tool {
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name:        ToolResearchCompany,
				Description: "Research a company using comprehensive web search and AI analysis.",
				Parameters: objectSchema(map[string]any{
					"company_name": stringProp("The official company name or commonly recognized brand name."),
				}, "company_name"),
			},
			Handler: func(ctx context.Context, call llm.ToolCall, _ *State) (ToolResult, error) {
				args, err := DecodeArgs[struct {
					CompanyName string `json:"company_name"`
				}](call)
				if err != nil {
					return ToolResult{}, err
				}
				if strings.TrimSpace(args.CompanyName) == "" {
					return ToolResult{}, invalidArgs("company_name is required")
				}
				return runResearch(ctx, r, research.Subject{Type: research.SearchTypeCompany, Name: args.CompanyName})
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        ToolResearchPerson,
				Description: "Research a specific person within a company using web search and AI analysis.",
				Parameters: objectSchema(map[string]any{
					"name":    stringProp("The full name of the person."),
					"company": stringProp("The company the person works for or is associated with."),
				}, "name", "company"),
			},
			Handler: func(ctx context.Context, call llm.ToolCall, _ *State) (ToolResult, error) {
				args, err := DecodeArgs[struct {
					Name    string `json:"name"`
					Company string `json:"company"`
				}](call)
				if err != nil {
					return ToolResult{}, err
				}
				if strings.TrimSpace(args.Name) == "" {
					return ToolResult{}, invalidArgs("name is required")
				}
				return runResearch(ctx, r, research.Subject{
					Type:    research.SearchTypePerson,
					Name:    args.Name,
					Company: args.Company,
				})
			},
		},
	}
}

// runResearch runs a nested research workflow with its own run and state;
// only the report content and usage flow back.
func runResearch(ctx context.Context, r Researcher, subject research.Subject) (ToolResult, error) {
	report, err := r.Research(ctx, "", subject)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Content: report.Content, Usage: report.Usage}, nil
}

type companyArgs struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Industry    string `json:"industry"`
}

type personArgs struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	CompanyID   uint   `json:"company_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type lookupArgs struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// StorageTools returns the tools that read and write companies and persons.
func StorageTools(store EntityStore) []Tool {
	lookup := objectSchema(map[string]any{
		"id":   map[string]any{"type": "integer", "description": "Database ID."},
		"name": stringProp("Exact name."),
	})
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name:        ToolSaveCompany,
				Description: "Save a company. Pass id to update an existing record; omit it to create one.",
				Parameters: objectSchema(map[string]any{
					"id":          map[string]any{"type": "integer"},
					"name":        stringProp("Company name."),
					"description": stringProp("Summary of what the company does."),
					"website":     stringProp("Company website URL."),
					"industry":    stringProp("Industry."),
				}, "name"),
			},
			Handler: func(ctx context.Context, call llm.ToolCall, _ *State) (ToolResult, error) {
				args, err := DecodeArgs[companyArgs](call)
				if err != nil {
					return ToolResult{}, err
				}
				c := &storage.Company{
					ID:          args.ID,
					Name:        args.Name,
					Description: args.Description,
					Website:     args.Website,
					Industry:    args.Industry,
				}
				if args.ID == 0 {
					err = store.CreateCompany(ctx, c)
				} else {
					err = store.UpdateCompany(ctx, c)
				}
				if err != nil {
					return storeFailure(err)
				}
				return JSONResult(c)
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        ToolFindCompany,
				Description: "Find stored companies by id or by name.",
				Parameters:  lookup,
			},
			Handler: func(ctx context.Context, call llm.ToolCall, _ *State) (ToolResult, error) {
				args, err := DecodeArgs[lookupArgs](call)
				if err != nil {
					return ToolResult{}, err
				}
				switch {
				case args.ID != 0:
					c, err := store.CompanyByID(ctx, args.ID)
					if err != nil {
						return storeFailure(err)
					}
					return JSONResult([]storage.Company{*c})
				case args.Name != "":
					found, err := store.CompaniesByName(ctx, args.Name)
					if err != nil {
						return storeFailure(err)
					}
					if len(found) == 0 {
						return TextResult(fmt.Sprintf("No company named %q.", args.Name)), nil
					}
					return JSONResult(found)
				default:
					return ToolResult{}, invalidArgs("id or name is required")
				}
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        ToolListCompanies,
				Description: "List stored companies.",
				Parameters: objectSchema(map[string]any{
					"limit":  map[string]any{"type": "integer"},
					"offset": map[string]any{"type": "integer"},
				}),
			},
			Handler: func(ctx context.Context, call llm.ToolCall, _ *State) (ToolResult, error) {
				args, err := DecodeArgs[struct {
					Limit  int `json:"limit"`
					Offset int `json:"offset"`
				}](call)
				if err != nil {
					return ToolResult{}, err
				}
				if args.Limit <= 0 {
					args.Limit = defaultListLimit
				}
				list, err := store.ListCompanies(ctx, args.Limit, args.Offset)
				if err != nil {
					return storeFailure(err)
				}
				if len(list) == 0 {
					return TextResult("No companies stored."), nil
				}
				return JSONResult(list)
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        ToolSavePerson,
				Description: "Save a person. Pass id to update an existing record; omit it to create one.",
				Parameters: objectSchema(map[string]any{
					"id":          map[string]any{"type": "integer"},
					"name":        stringProp("Full name."),
					"company_id":  map[string]any{"type": "integer", "description": "ID of a stored company."},
					"title":       stringProp("Job title."),
					"description": stringProp("Profile summary."),
				}, "name"),
			},
			Handler: func(ctx context.Context, call llm.ToolCall, _ *State) (ToolResult, error) {
				args, err := DecodeArgs[personArgs](call)
				if err != nil {
					return ToolResult{}, err
				}
				p := &storage.Person{
					ID:          args.ID,
					Name:        args.Name,
					Title:       args.Title,
					Description: args.Description,
				}
				if args.CompanyID != 0 {
					id := args.CompanyID
					p.CompanyID = &id
				}
				if args.ID == 0 {
					err = store.CreatePerson(ctx, p)
				} else {
					err = store.UpdatePerson(ctx, p)
				}
				if err != nil {
					return storeFailure(err)
				}
				return JSONResult(p)
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        ToolFindPerson,
				Description: "Find stored persons by id or by name.",
				Parameters:  lookup,
			},
			Handler: func(ctx context.Context, call llm.ToolCall, _ *State) (ToolResult, error) {
				args, err := DecodeArgs[lookupArgs](call)
				if err != nil {
					return ToolResult{}, err
				}
				switch {
				case args.ID != 0:
					p, err := store.PersonByID(ctx, args.ID)
					if err != nil {
						return storeFailure(err)
					}
					return JSONResult([]storage.Person{*p})
				case args.Name != "":
					found, err := store.PersonsByName(ctx, args.Name)
					if err != nil {
						return storeFailure(err)
					}
					if len(found) == 0 {
						return TextResult(fmt.Sprintf("No person named %q.", args.Name)), nil
					}
					return JSONResult(found)
				default:
					return ToolResult{}, invalidArgs("id or name is required")
				}
			},
		},
	}
}

// storeFailure turns not-found and validation errors into tool results the
// model can act on. Anything else fails the run.
func storeFailure(err error) (ToolResult, error) {
	switch types.GetErrorCode(err) {
	case types.ErrNotFound:
		return TextResult(err.Error()), nil
	case types.ErrInvalidRequest:
		return ToolResult{}, invalidArgs("%s", err.Error())
	default:
		return ToolResult{}, err
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(props map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return llm.MustSchema(schema)
}

package research

import "fmt"

const queryWriterPrompt = `Your goal is to generate targeted web search queries that will gather comprehensive information for writing a summary about %s.

%s

Your queries should be:
- Specific enough to avoid generic results
- Diverse enough to cover all aspects of the summary
- Focused on authoritative sources (official pages, reputable news sources, filings, interviews)

You will generate exactly %d queries.

Return the queries as a JSON object:

{"queries": [{"query": "string", "aspect": "string", "rationale": "string"}]}`

const queryWriterUserPrompt = "Generate search queries that will help with writing the summary."

var queryFocus = map[SearchType]string{
	SearchTypeTopic: `When generating the search queries, ensure they:
1. Cover different aspects of the topic (core concepts, real-world applications, recent developments)
2. Include specific terms related to the topic
3. Target recent information where relevant`,
	SearchTypeCompany: `When generating the search queries, ensure they cover:
1. What the company does: products, services and business model
2. Industry, size, headquarters and website
3. Leadership and ownership
4. Recent news, funding, partnerships and financial results`,
	SearchTypePerson: `When generating the search queries, ensure they cover:
1. The person's current role and responsibilities at the company
2. Career history and education
3. Public statements, interviews and publications
4. Recent news mentioning the person`,
}

const summaryWriterPrompt = `You are an expert writer working on a summary about %s.

Guidelines for writing:

1. Accuracy:
- Reference concrete facts and figures from the sources
- Do not invent details that the sources do not support

2. Length and Style:
- Approximately (but less than) %d words, excluding title and sources
- No marketing language
- Write in simple, clear language
- Start with your most important insight in **bold**

3. Structure:
- Use ## for the title (Markdown format)
- Use at most ONE structural element (a short table or a short list) and only if it helps clarify your point
- End with ### Sources listing each source as ` + "`- Title : URL`" + `

4. Use this source material to write the summary:
%s
%s`

const summaryWriterUserPrompt = "Generate a summary based on the provided sources."

const previousSummaryPrompt = `
5. Extend and correct this earlier version of the summary with the new sources:
%s`

const reviewerPrompt = `You are an expert research assistant analyzing a summary about %s.

Here is the summary:
%s

Your tasks:
1. Identify knowledge gaps or areas that need deeper exploration in the summary
2. Generate follow-up questions that would help expand the summary
3. Convert each follow-up question to a stand-alone web search query that includes the necessary context

Generate at most %d queries. If the summary has no meaningful gaps, return an empty queries list.

Provide your analysis as a JSON object:

{"reasoning": "string", "knowledge_gap": "string", "queries": [{"query": "string"}]}`

func writerPrompt(s *State, wordLimit int) string {
	previous := ""
	if s.Content != "" {
		previous = fmt.Sprintf(previousSummaryPrompt, s.Content)
	}
	return fmt.Sprintf(summaryWriterPrompt, s.Subject.Topic(), wordLimit, s.Sources, previous)
}

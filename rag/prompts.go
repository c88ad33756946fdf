package rag

import (
	"fmt"
	"strings"
)

const routerPrompt = `You are an expert at routing a user question to a vectorstore or to internal knowledge.
The vectorstore contains documents related to the following topics:
%s
Use the vectorstore for questions on these topics. For everything else, use internal knowledge.
Return JSON with a single key, datasource, that is 'internal' or 'vectorstore' depending on the question.

Question: %s`

const documentGraderPrompt = `You are a teacher grading a quiz. You are grading RELEVANCE RECALL.
You will be given a QUESTION and a FACT provided by the student.
Score 'yes' if ANY of the statements in the FACT are relevant to the QUESTION, 'no' if NONE are.

Question: %s

Fact:

%s

Provide the binary score as JSON with a single key 'score' and no preamble or explanation.`

const hallucinationGraderPrompt = `You are a grader assessing whether an answer is grounded in / supported by a set of facts.
Here are the facts:
-------
%s
-------
Here is the answer: %s

Give a binary score 'yes' or 'no' to indicate whether the answer is grounded in / supported by the facts.
Provide the binary score as JSON with a single key 'score' and no preamble or explanation.`

const answerGraderPrompt = `You are a grader assessing whether an answer is useful to resolve a question.
Here is the answer:
-------
%s
-------
Here is the question: %s

Give a binary score 'yes' or 'no' to indicate whether the answer is useful to resolve the question.
Provide the binary score as JSON with a single key 'score' and no preamble or explanation.`

const rewriterSystemPrompt = `You are a question re-writer that converts an input question to a better version that is optimized for retrieval. Look at the input and reason about the underlying semantic intent.`

const rewriterUserPrompt = `Here is the initial question:

%s

Formulate an improved question. Reply with the question only.`

const answerPrompt = `You are an assistant for question-answering tasks.
Use the following documents to answer the question.
If you don't know the answer, just say that you don't know.
Keep the answer concise.

Question: %s

Documents:
%s

Answer:`

const internalAnswerPrompt = `You are an assistant for question-answering tasks.
Answer the following question from your own knowledge.
If you don't know the answer, just say that you don't know.
Keep the answer concise.

Question: %s

Answer:`

func topicList(topics []string) string {
	if len(topics) == 0 {
		return "* documents loaded into this deployment"
	}
	var b strings.Builder
	for i, t := range topics {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "* %s", t)
	}
	return b.String()
}

// joinContent joins document contents with blank lines, which is how the
// answer prompt receives its context.
func joinContent(docs []Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n\n")
}

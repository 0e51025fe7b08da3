package rag

import (
	"strings"
	"text/template"
)

// Prompt slots. Queries are rendered with %q so user text cannot break out
// of its quoted position in the instructions.
type queryPrompt struct {
	Query string
}

type answerPrompt struct {
	Context  string
	Question string
	Refusal  string
}

var (
	routerTmpl = mustPrompt("router", `Classify the intent of the user's query. There are exactly two intents.

chit_chat: greetings, small talk, or general questions that are not about the user's documents.
  Examples: "Hello", "How are you?", "Tell me a joke", "Who won the world series?"

query_documents: questions expected to be answered from a specific set of documents.
  Examples: "What is the policy on remote work?", "Summarize the project proposal.", "Compare the Q3 and Q4 results."

Respond with ONLY chit_chat or query_documents.

User query: {{printf "%q" .Query}}
Intent:`)

	rewriteTmpl = mustPrompt("rewrite", `Rewrite the user's query into a short, keyword-rich search query for a document index.
Keep the key terms, entities and concepts. Drop conversational filler.
Never answer the question. Respond with the rewritten query only.

User query: {{printf "%q" .Query}}
Rewritten query:`)

	answerTmpl = mustPrompt("answer", `You answer questions using only the CONTEXT below.

Rules:
1. Read every snippet in CONTEXT and use the ones relevant to the QUESTION.
2. Combine information from several snippets into one coherent answer.
3. Use nothing outside CONTEXT. Do not guess.
4. If CONTEXT does not contain the answer, reply exactly: "{{.Refusal}}"
5. Be clear and concise.

Example:
  CONTEXT: "The project deadline is November 10th."
  QUESTION: "What is the capital of France?"
  ANSWER: "{{.Refusal}}"

[CONTEXT]
{{.Context}}

[QUESTION]
{{printf "%q" .Question}}

[ANSWER]:`)

	converseTmpl = mustPrompt("converse", `You are a friendly assistant for a document question-answering service.
Reply briefly and naturally to the user's message. If they ask about their documents, suggest they ask a specific question.

User message: {{printf "%q" .Query}}
Reply:`)
)

func mustPrompt(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=error").Parse(text))
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

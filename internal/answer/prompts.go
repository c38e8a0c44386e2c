package answer

import (
	"fmt"
	"strings"
	"text/template"

	"docmind/internal/domain"
)

var groundedPrompt = template.Must(template.New("grounded").Parse(`You are an intelligent assistant that answers questions based on provided context.

CONTEXT:
{{.Context}}

QUESTION:
{{.Question}}

INSTRUCTIONS:
1. Answer the question based only on the provided context.
2. If the context doesn't contain enough information to answer the question, just say "I don't have enough information to answer that question."
3. Provide a detailed and informative answer.
4. Format your answer in a clear and readable way.
5. If appropriate, use bullet points or numbered lists.

ANSWER:
`))

var directPrompt = template.Must(template.New("direct").Parse(`You are an intelligent assistant that answers general questions and helps users with their PDF documents.

QUESTION:
{{.Question}}

INSTRUCTIONS:
1. Answer the question directly and concisely.
2. If the question is about specific document content, explain that you need access to the document to answer it.
3. Provide helpful information about general concepts related to retrieval-augmented generation, chatbots, or PDFs if relevant.
4. Format your answer in a clear and readable way.

ANSWER:
`))

type promptData struct {
	Context  string
	Question string
}

// FormatContext numbers chunks and labels each with its source.
func FormatContext(chunks []domain.Chunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		source := ch.Source
		if source == "" {
			source = "Unknown source"
		}
		parts[i] = fmt.Sprintf("Document %d (from %s):\n%s", i+1, source, ch.Content)
	}
	return strings.Join(parts, "\n\n")
}

func render(t *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

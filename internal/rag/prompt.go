package rag

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nyayalabs/nyaya/internal/knowledge"
	"github.com/nyayalabs/nyaya/internal/provider"
	"github.com/nyayalabs/nyaya/internal/retrieval"
	"github.com/nyayalabs/nyaya/internal/session"
)

// RefusalMessage is returned verbatim when the index holds nothing
// relevant to the question.
const RefusalMessage = "Sorry,no result found for above search."

// historyAnswerLimit caps how many runes of a past assistant answer are
// replayed into the prompt.
const historyAnswerLimit = 200

const systemPrompt = `You are a legal research assistant for Indian statute law.

Answer strictly from the provided statute excerpts. Each excerpt is
labeled with its source file and chunk number. When you answer:
- Quote or paraphrase only what the excerpts support.
- Name the section numbers you rely on.
- Keep the answer precise and structured.
- If the excerpts do not contain the answer, reply exactly:
  ` + RefusalMessage

// Bare section references, e.g. "section 27" or "Section 65B".
var sectionPattern = regexp.MustCompile(`(?i)^\s*section\s+(\d+[A-Za-z]?)\s*\??\s*$`)

// NormalizeQuestion expands a bare "section N" lookup into a full
// question about the Indian Evidence Act, 1872; anything else passes
// through trimmed.
func NormalizeQuestion(question string) string {
	if m := sectionPattern.FindStringSubmatch(question); m != nil {
		return fmt.Sprintf("Explain Section %s of the Indian Evidence Act, 1872", strings.ToUpper(m[1]))
	}
	return strings.TrimSpace(question)
}

// BuildContext renders retrieved chunks into the labeled excerpt block
// the system prompt refers to.
func BuildContext(hits []retrieval.Hit) string {
	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		meta := hit.Document.Metadata
		label := fmt.Sprintf("[%s | chunk %s]", meta[knowledge.MetaSource], meta[knowledge.MetaChunk])
		blocks = append(blocks, label+"\n"+hit.Document.Content)
	}
	return strings.Join(blocks, "\n\n")
}

// buildMessages assembles the full chat transcript: system prompt,
// replayed history, then the context-grounded question.
func buildMessages(question, contextBlock string, history []session.Exchange) []provider.Message {
	messages := make([]provider.Message, 0, 2+2*len(history))
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: systemPrompt,
	})

	for _, ex := range history {
		messages = append(messages,
			provider.Message{Role: provider.RoleUser, Content: ex.Question},
			provider.Message{Role: provider.RoleAssistant, Content: truncateRunes(ex.Answer, historyAnswerLimit)},
		)
	}

	messages = append(messages, provider.Message{
		Role:    provider.RoleUser,
		Content: fmt.Sprintf("Statute excerpts:\n%s\n\nQuestion: %s", contextBlock, question),
	})
	return messages
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

package query

import (
	"strings"

	"github.com/ashirbekov/txinsights/internal/domain"
)

// Vocabulary for the topic gate. The keyword lists are deliberately broad;
// the gate only has to keep obvious chat away from the model, the system
// prompt and validator do the real work.
var (
	topicKeywords = []string{
		"sql", "query", "select", "where", "from", "join", "group by", "order by",
		"top", "retrieve", "get", "find", "show", "list", "count", "sum", "avg",
		"max", "min", "merchant", "revenue", "transaction", "sales", "table",
		"column", "filter", "sort", "aggregate", "trx", "amount", "date", "card",
		"issuer", "acquirer", "mcc", "wallet", "currency", "city", "timestamp",
	}

	offTopicPhrases = []string{
		"hello", "hi", "how are you", "what can you do", "tell me about",
		"explain yourself", "who are you", "what is", "define", "help me with",
		"write a poem", "joke", "story", "code in", "python", "javascript",
	}

	schemaTerms = buildSchemaTerms()
)

func buildSchemaTerms() []string {
	terms := domain.ColumnNames()
	return append(terms, "transaction", "merchant", "card", "amount", "currency", "mcc", "wallet")
}

// OnTopic reports whether a question plausibly asks about the transaction
// table. It is a cheap pre-check that saves a model call on greetings and
// general chat; anything that mentions the schema passes.
func OnTopic(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	if len(q) < 5 {
		return false
	}

	hasKeyword := containsAny(q, topicKeywords)
	if containsAny(q, offTopicPhrases) && !hasKeyword {
		return false
	}
	return hasKeyword || containsAny(q, schemaTerms)
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

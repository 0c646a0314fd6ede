// Package classifier tags repositories with the cloud providers their names
// suggest, for report grouping and filtering downstream.
package classifier

import (
	"sort"
	"strings"

	"github.com/Shavakan/secrets-fleet/pkg/github"
)

// KeywordClassifier matches provider keywords against repository names.
// A repository can match several providers; all matches are returned.
type KeywordClassifier struct {
	keywords map[string][]string // provider -> keywords
}

// NewKeywordClassifier creates a classifier with the default keyword sets.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		keywords: map[string][]string{
			"aws":   {"aws", "amazon", "ec2", "lambda", "s3", "dynamodb", "cloudformation", "eks"},
			"gcp":   {"gcp", "google-cloud", "gke", "bigquery", "firebase"},
			"azure": {"azure", "aks", "cosmosdb"},
		},
	}
}

// Classify returns every provider whose keywords appear in name, sorted
// alphabetically. An unmatched name returns nil.
func (c *KeywordClassifier) Classify(name string) []string {
	lowered := strings.ToLower(name)

	var providers []string
	for provider, words := range c.keywords {
		for _, word := range words {
			if containsToken(lowered, word) {
				providers = append(providers, provider)
				break
			}
		}
	}

	sort.Strings(providers)
	return providers
}

// Annotate fills Providers on each repository in place.
func (c *KeywordClassifier) Annotate(repos []github.Repository) {
	for i := range repos {
		repos[i].Providers = c.Classify(repos[i].Name)
	}
}

// containsToken reports whether word appears in name as a separate token,
// bounded by non-alphanumeric characters or the string edges. This keeps
// "paws-service" from matching "aws".
func containsToken(name, word string) bool {
	for start := 0; ; {
		idx := strings.Index(name[start:], word)
		if idx < 0 {
			return false
		}
		idx += start

		before := idx == 0 || !isAlnum(name[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx == len(name) || !isAlnum(name[afterIdx])
		if before && after {
			return true
		}
		start = idx + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

package keywords

// stopwords holds English function words plus job-ad boilerplate that says
// nothing about the role itself.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// function words
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "when", "at",
		"by", "for", "in", "of", "on", "to", "from", "up", "down", "with", "as",
		"is", "are", "was", "were", "be", "been", "being", "it", "its", "that",
		"this", "these", "those", "you", "your", "yours", "we", "our", "ours",
		"they", "their", "theirs", "i", "me", "my", "mine", "he", "she", "him",
		"her", "his", "hers", "do", "does", "did", "doing", "have", "has", "had",
		"having", "not", "no", "yes", "can", "could", "should", "would", "may",
		"might", "will", "just", "all", "also", "any", "into", "more", "than",
		"such", "who", "what", "which", "how", "about", "other", "within",
		"across", "including", "etc",
		// boilerplate
		"experience", "experienced", "required", "requirements", "require",
		"preferred", "plus", "responsibilities", "responsible", "ability",
		"able", "strong", "excellent", "good", "knowledge", "skills", "skill",
		"work", "working", "job", "role", "join", "team", "candidate",
		"candidates", "looking", "opportunity", "must", "nice", "well", "using",
	} {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether term is filtered out of every extraction.
func IsStopword(term string) bool {
	_, ok := stopwords[term]
	return ok
}

package memory

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandevgo/recall/internal/core"
)

const maxValueLength = 60

type rule struct {
	pattern    *regexp.Regexp
	factType   string
	key        func(m []string) string
	value      func(m []string) string
	category   core.Category
	confidence float64
	priority   core.Priority
}

// PatternExtractor finds facts with a fixed table of case-insensitive patterns.
// The first rule producing a fact type wins within one message.
type PatternExtractor struct {
	rules []rule
}

var _ core.Extractor = (*PatternExtractor)(nil)

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{rules: defaultRules()}
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?;\n]+`)
	spaces        = regexp.MustCompile(`\s+`)
	nonSlug       = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

const (
	word  = `[\p{L}][\p{L}'\-]*`
	names = `(` + word + `(?:\s+` + word + `)?)`
	adv   = `(?:really |truly |absolutely |totally |just |kind of |so |very |a bit |pretty )*`
	pets  = `(dog|cat|puppy|kitten|bird|parrot|hamster|rabbit|bunny|turtle|fish|horse|snake)`
)

func re(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

func group(i int) func(m []string) string {
	return func(m []string) string { return m[i] }
}

func constant(v string) func(m []string) string {
	return func([]string) string { return v }
}

func defaultRules() []rule {
	return []rule{
		// identity
		{pattern: re(`\bmy name(?:'s| is) ` + names), factType: "name", value: group(1), category: core.CategoryIdentity, confidence: 0.9, priority: core.PriorityCritical},
		{pattern: re(`\b(?:call me|i(?:'m| am) called) (` + word + `)`), factType: "name", value: group(1), category: core.CategoryIdentity, confidence: 0.9, priority: core.PriorityCritical},
		{pattern: re(`\bi(?: am|'m)? work(?:ing)? (?:at|for) (.+)`), factType: "job", value: group(1), category: core.CategoryIdentity, confidence: 0.9, priority: core.PriorityCritical},
		{pattern: re(`\bi(?: am|'m)? work(?:ing)? as (?:an? )?(.+)`), factType: "occupation", value: group(1), category: core.CategoryIdentity, confidence: 0.9, priority: core.PriorityHigh},
		{pattern: re(`\bi(?: am|'m) an? ((?:` + word + ` )?(?:engineer|developer|programmer|designer|teacher|nurse|doctor|student|manager|writer|artist|lawyer|scientist|chef|musician|researcher))\b`), factType: "occupation", value: group(1), category: core.CategoryIdentity, confidence: 0.85, priority: core.PriorityHigh},
		{pattern: re(`\bi(?: am|'m)? (?:live|living) in (.+)`), factType: "location", value: group(1), category: core.CategoryIdentity, confidence: 0.9, priority: core.PriorityHigh},
		{pattern: re(`\bi(?: am|'m) (?:originally )?from (.+)`), factType: "hometown", value: group(1), category: core.CategoryIdentity, confidence: 0.85, priority: core.PriorityHigh},
		{pattern: re(`\bi(?: am|'m) (\d{1,3}) (?:years? old|yo)\b`), factType: "age", value: group(1), category: core.CategoryIdentity, confidence: 0.9, priority: core.PriorityHigh},
		{pattern: re(`\bmy age is (\d{1,3})\b`), factType: "age", value: group(1), category: core.CategoryIdentity, confidence: 0.9, priority: core.PriorityHigh},
		{pattern: re(`\bi(?: am|'m)? (?:study|studying|major in|majoring in) (.+)`), factType: "studies", value: group(1), category: core.CategoryIdentity, confidence: 0.85, priority: core.PriorityHigh},
		{
			pattern:  re(`\bmy (wife|husband|girlfriend|boyfriend|partner|fiancee?)(?:'s name is| is (?:named|called)) (` + word + `)`),
			key:      func(m []string) string { return slug(m[1]) + "_name" },
			value:    group(2),
			category: core.CategoryIdentity, confidence: 0.85, priority: core.PriorityHigh,
		},
		{
			pattern:  re(`\bi have an? ` + pets + ` (?:named|called) (` + word + `)`),
			key:      func(m []string) string { return slug(m[1]) + "_name" },
			value:    group(2),
			category: core.CategoryIdentity, confidence: 0.85, priority: core.PriorityMedium,
		},
		{
			pattern:  re(`\bmy ` + pets + `(?:'s name is| is (?:named|called)) (` + word + `)`),
			key:      func(m []string) string { return slug(m[1]) + "_name" },
			value:    group(2),
			category: core.CategoryIdentity, confidence: 0.85, priority: core.PriorityMedium,
		},
		{
			pattern:  re(`\bmy (birthday|nickname|pronouns|hometown|major|profession) (?:is|are) (.+)`),
			key:      func(m []string) string { return slug(m[1]) },
			value:    group(2),
			category: core.CategoryIdentity, confidence: 0.9, priority: core.PriorityHigh,
		},

		// preferences
		{
			pattern:  re(`\bmy fav(?:ou?rite)? ([\p{L} ]+?) (?:is|are) (.+)`),
			key:      func(m []string) string { return "favorite_" + slug(m[1]) },
			value:    group(2),
			category: core.CategoryPreference, confidence: 0.85, priority: core.PriorityHigh,
		},
		{
			pattern:  re(`\bi ` + adv + `(?:hate|dislike|detest|can't stand|cannot stand|don't like|do not like) (.+)`),
			key:      func(m []string) string { return objectKey(m[1]) },
			value:    constant("dislikes"),
			category: core.CategoryPreference, confidence: 0.8, priority: core.PriorityMedium,
		},
		{
			pattern:  re(`\bi ` + adv + `(?:love|like|enjoy|adore) (.+)`),
			key:      func(m []string) string { return objectKey(m[1]) },
			value:    constant("likes"),
			category: core.CategoryPreference, confidence: 0.8, priority: core.PriorityMedium,
		},
		{pattern: re(`\bmy hobby is (.+)`), factType: "hobby", value: group(1), category: core.CategoryPreference, confidence: 0.8, priority: core.PriorityMedium},

		// events
		{
			pattern:  re(`\bi ` + adv + `(?:recently )?(moved to|started|finished|graduated from|got a new job at|quit|broke up with|got engaged to|got married to|adopted|bought) (.+)`),
			key:      func(m []string) string { return slug(m[1]) },
			value:    group(2),
			category: core.CategoryEvent, confidence: 0.75, priority: core.PriorityMedium,
		},
		{pattern: re(`\bi(?: am|'m)? (?:planning|plan|hoping|hope) to (.+)`), factType: "plans", value: group(1), category: core.CategoryEvent, confidence: 0.7, priority: core.PriorityLow},
		{pattern: re(`\bmy (?:goal|dream) is to (.+)`), factType: "goal", value: group(1), category: core.CategoryEvent, confidence: 0.75, priority: core.PriorityMedium},

		// opinions and mood
		{
			pattern:  re(`\bi(?: am|'m)? (?:feel|feeling) ` + adv + `(happy|sad|tired|stressed|anxious|excited|lonely|angry|nervous|worried|bored|exhausted|overwhelmed|great|good|down|upset|calm|hopeful|grateful|scared|frustrated)\b`),
			factType: "mood", value: group(1), category: core.CategoryOpinion, confidence: 0.7, priority: core.PriorityMedium,
		},
		{
			pattern:  re(`\bi(?: am|'m) ` + adv + `(happy|sad|tired|stressed|anxious|excited|lonely|angry|nervous|worried|bored|exhausted|overwhelmed|upset|hopeful|grateful|scared|frustrated)\b`),
			factType: "mood", value: group(1), category: core.CategoryOpinion, confidence: 0.65, priority: core.PriorityMedium,
		},
		{
			pattern:  re(`\b(?:i think|i believe|in my opinion,?) (?:that )?(.+?) (?:is|are) (.+)`),
			key:      func(m []string) string { return opinionKey(m[1]) },
			value:    group(2),
			category: core.CategoryOpinion, confidence: 0.65, priority: core.PriorityLow,
		},
	}
}

func (e *PatternExtractor) Extract(text string) []core.Candidate {
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)

	var (
		out  []core.Candidate
		seen = make(map[string]bool)
	)
	for _, sentence := range sentenceSplit.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		for _, r := range e.rules {
			for _, m := range r.pattern.FindAllStringSubmatch(sentence, -1) {
				factType := r.factType
				if r.key != nil {
					factType = r.key(m)
				}
				value := cleanValue(r.value(m))
				if factType == "" || value == "" || seen[factType] {
					continue
				}
				seen[factType] = true
				out = append(out, core.Candidate{
					FactType:   factType,
					Category:   r.category,
					Value:      value,
					Confidence: r.confidence,
					Priority:   r.priority,
				})
			}
		}
	}
	return out
}

var (
	// clauses after these words describe something else
	stopWords = map[string]bool{
		"and": true, "but": true, "because": true, "so": true, "since": true,
		"which": true, "who": true, "although": true, "though": true, "while": true,
		"when": true, "if": true, "or": true,
	}
	fillerWords = map[string]bool{
		"now": true, "today": true, "currently": true, "too": true, "also": true,
		"anymore": true, "actually": true, "lol": true, "haha": true, "btw": true,
		"right": true, "already": true, "though": true, "honestly": true,
	}
	pronouns = map[string]bool{
		"you": true, "it": true, "that": true, "this": true, "them": true, "him": true,
		"her": true, "me": true, "us": true, "things": true, "everything": true, "nothing": true,
		"": true,
	}
)

// cleanValue keeps the first clause of a captured value and strips filler.
func cleanValue(v string) string {
	fields := strings.Fields(spaces.ReplaceAllString(v, " "))
	for i, f := range fields {
		if stopWords[strings.ToLower(strings.Trim(f, `,:"'()`))] {
			fields = fields[:i]
			break
		}
		if strings.HasSuffix(f, ",") {
			fields = fields[:i+1]
			break
		}
	}
	for len(fields) > 0 {
		last := strings.ToLower(strings.Trim(fields[len(fields)-1], `,:"'()`))
		if !fillerWords[last] {
			break
		}
		fields = fields[:len(fields)-1]
	}
	if len(fields) >= 2 && strings.EqualFold(fields[len(fields)-2], "these") && strings.EqualFold(strings.Trim(fields[len(fields)-1], ","), "days") {
		fields = fields[:len(fields)-2]
	}

	value := strings.TrimFunc(strings.Join(fields, " "), func(r rune) bool {
		return unicode.IsPunct(r) && r != '+' && r != '#' || unicode.IsSpace(r)
	})
	if utf8.RuneCountInString(value) > maxValueLength {
		value = string([]rune(value)[:maxValueLength])
		if i := strings.LastIndex(value, " "); i > 0 {
			value = value[:i]
		}
	}
	return value
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// objectKey turns the object of a preference verb into a fact type.
func objectKey(object string) string {
	object = strings.ToLower(cleanValue(object))
	for _, prefix := range []string{"to ", "the ", "a ", "an ", "my ", "your ", "some ", "playing ", "doing "} {
		object = strings.TrimPrefix(object, prefix)
	}
	if pronouns[object] {
		return ""
	}
	if words := strings.Fields(object); len(words) > 3 {
		object = strings.Join(words[:3], " ")
	}
	return slug(object)
}

func opinionKey(subject string) string {
	subject = strings.ToLower(cleanValue(subject))
	for _, prefix := range []string{"the ", "a ", "an "} {
		subject = strings.TrimPrefix(subject, prefix)
	}
	if pronouns[subject] {
		return ""
	}
	return "opinion_" + slug(subject)
}

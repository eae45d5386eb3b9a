// Package intent derives the scope a user literally asked for from a
// natural-language rule condition. The result is used to correct and
// check whatever the language model compiled from the same text.
package intent

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// languageExtensions maps a language mention to the extensions it implies
type languageExtensions struct {
	name       string
	pattern    *regexp.Regexp
	extensions []string
}

// Extractor turns rule text into a domain.RuleIntent.
// It is stateless after construction and safe for concurrent use.
type Extractor struct {
	deleteWords *regexp.Regexp
	createWords *regexp.Regexp
	modifyWords *regexp.Regexp
	changeWords *regexp.Regexp

	literalExtension *regexp.Regexp
	languages        []languageExtensions

	locationPhrase *regexp.Regexp
	exclusionWords *regexp.Regexp

	countPatterns []*regexp.Regexp
	windowPattern *regexp.Regexp
	durationToken *regexp.Regexp

	stopwords map[string]struct{}
}

var defaultExtractor = NewExtractor()

// Extract derives the intent of text using the shared default extractor
func Extract(text string) domain.RuleIntent {
	return defaultExtractor.Extract(text)
}

// NewExtractor creates an extractor with all patterns pre-compiled
func NewExtractor() *Extractor {
	e := &Extractor{
		deleteWords: regexp.MustCompile(`\b(delete[sd]?|deleting|deletion|remove[sd]?|removing|removal|unlink(?:s|ed)?|erase[sd]?|disappear(?:s|ed)?)\b`),
		createWords: regexp.MustCompile(`\b(create[sd]?|creating|creation|add(?:s|ed)?|adding|new|appear(?:s|ed)?)\b`),
		modifyWords: regexp.MustCompile(`\b(modif(?:y|ies|ied|ying|ication)|edit(?:s|ed)?|editing|update[sd]?|updating|save[sd]?|saving|write|writes|written|rewrite[sn]?)\b`),
		changeWords: regexp.MustCompile(`\b(change[sd]?|changing|touch(?:es|ed)?)\b`),

		literalExtension: regexp.MustCompile(`\.[a-z0-9]{1,6}\b`),

		locationPhrase: regexp.MustCompile(`(?i)\b(?:in|from|under|inside|within)\s+(?:(?:the|a|an)\s+)?([A-Za-z0-9_.\-/\\]+)`),
		exclusionWords: regexp.MustCompile(`^(?:excluding|except|ignoring|ignore|without|not|but)$`),

		countPatterns: []*regexp.Regexp{
			regexp.MustCompile(`\bat\s+least\s+(\d+)\b`),
			regexp.MustCompile(`\b(\d+)\s*(?:\+|or\s+(?:more|greater|above|over)\b)(?:\s+(?:files?|events?|changes?|times?)\b)?`),
			regexp.MustCompile(`\b(\d+)\s+(?:files?|events?|changes?)\b`),
		},
		windowPattern: regexp.MustCompile(`\b(?:within|in|over|during|for)\s+(?:the\s+)?(?:(?:last|past)\s+)?(\d+)\s*(seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h)\b`),
		durationToken: regexp.MustCompile(`^\d+(?:s|secs?|m|mins?|h|hrs?)?$`),

		stopwords: make(map[string]struct{}),
	}

	// Priority order: the first entries are checked first.
	e.languages = []languageExtensions{
		{"typescript", regexp.MustCompile(`\b(typescript|ts)\b`), []string{".ts", ".tsx"}},
		{"javascript", regexp.MustCompile(`\b(javascript|js)\b`), []string{".js", ".jsx", ".mjs", ".cjs"}},
		{"python", regexp.MustCompile(`\b(python|py)\b`), []string{".py"}},
		{"golang", regexp.MustCompile(`\b(golang|go\s+(?:source\s+)?files?)\b`), []string{".go"}},
		{"rust", regexp.MustCompile(`\brust\b`), []string{".rs"}},
		{"java", regexp.MustCompile(`\bjava\b`), []string{".java"}},
		{"kotlin", regexp.MustCompile(`\bkotlin\b`), []string{".kt", ".kts"}},
		{"swift", regexp.MustCompile(`\bswift\b`), []string{".swift"}},
		{"ruby", regexp.MustCompile(`\bruby\b`), []string{".rb"}},
		{"php", regexp.MustCompile(`\bphp\b`), []string{".php"}},
		{"csharp", regexp.MustCompile(`(?:\bc#|\bcsharp\b)`), []string{".cs"}},
		{"cpp", regexp.MustCompile(`(?:\bc\+\+|\bcpp\b)`), []string{".cpp", ".cc", ".hpp", ".h"}},
		{"markdown", regexp.MustCompile(`\b(markdown|md)\b`), []string{".md", ".markdown"}},
		{"json", regexp.MustCompile(`\bjson\b`), []string{".json"}},
		{"yaml", regexp.MustCompile(`\b(yaml|yml)\b`), []string{".yaml", ".yml"}},
		{"css", regexp.MustCompile(`\b(css|stylesheets?)\b`), []string{".css", ".scss", ".sass", ".less"}},
		{"html", regexp.MustCompile(`\bhtml\b`), []string{".html", ".htm"}},
		{"sql", regexp.MustCompile(`\bsql\b`), []string{".sql"}},
		{"shell", regexp.MustCompile(`\b(shell|bash)\s+scripts?\b`), []string{".sh", ".bash"}},
		{"image", regexp.MustCompile(`\b(images?|pictures?|photos?)\b`), []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}},
		{"log", regexp.MustCompile(`\blog\s+files?\b`), []string{".log"}},
	}

	for _, w := range strings.Fields(`
		a an the this that these those any all every each some my our your their its it them
		in on at by for with from into onto under inside within of to and or but not no if when
		whenever while than then there here which what where who more less most least over above
		file files folder folders directory directories dir dirs path paths project repo repository
		code codebase source sources tree root workspace disk system place
		last past next same one ones total row time times period window
		second seconds sec secs s minute minutes min mins m hour hours hr hrs h day days
		alert notify tell warn me us someone something anything everything
		change changes changed create created delete deleted modify modified update updated
		edit edited add added remove removed new event events
		ts js py md yml`) {
		e.stopwords[w] = struct{}{}
	}
	for _, lang := range e.languages {
		e.stopwords[lang.name] = struct{}{}
	}

	return e
}

// Extract derives event types, extensions, path fragments and an optional
// count and window from text. Unrecognized text yields empty fields.
func (e *Extractor) Extract(text string) domain.RuleIntent {
	lower := strings.ToLower(text)

	result := domain.RuleIntent{
		EventTypes:   e.extractEventTypes(lower),
		Extensions:   e.extractExtensions(lower),
		PathIncludes: e.extractPaths(text),
	}

	if count, ok := e.extractCount(lower); ok {
		result.Count = &count
	}
	if window, ok := e.extractWindow(lower); ok {
		result.WindowSeconds = &window
	}

	return result
}

// extractEventTypes applies explicit-verb precedence over the generic change bucket
func (e *Extractor) extractEventTypes(lower string) []domain.EventType {
	hasCreate := e.createWords.MatchString(lower)
	hasModify := e.modifyWords.MatchString(lower)
	hasDelete := e.deleteWords.MatchString(lower)
	hasChange := e.changeWords.MatchString(lower)

	found := map[domain.EventType]bool{
		domain.EventCreated:  hasCreate,
		domain.EventModified: hasModify,
		domain.EventDeleted:  hasDelete,
	}

	if hasChange {
		if !hasCreate && !hasModify && !hasDelete {
			found[domain.EventCreated] = true
		}
		found[domain.EventModified] = true
	}

	types := make([]domain.EventType, 0, 3)
	for _, t := range domain.CanonicalEventTypes {
		if found[t] {
			types = append(types, t)
		}
	}
	return types
}

// extractExtensions prefers literal ".ext" tokens and falls back to language names
func (e *Extractor) extractExtensions(lower string) []string {
	var exts []string
	for _, loc := range e.literalExtension.FindAllStringIndex(lower, -1) {
		if isDecimal(lower, loc[0]) || isAbbreviation(lower, loc[0], loc[1]) {
			continue
		}
		exts = appendUnique(exts, lower[loc[0]:loc[1]])
	}
	if len(exts) > 0 {
		return exts
	}

	exts = []string{}
	for _, lang := range e.languages {
		if lang.pattern.MatchString(lower) {
			for _, ext := range lang.extensions {
				exts = appendUnique(exts, ext)
			}
		}
	}
	return exts
}

// isDecimal reports whether the dot at start sits between two digits, as in "3.5"
func isDecimal(s string, start int) bool {
	return start > 0 && isDigit(s[start-1]) && isDigit(s[start+1])
}

// isAbbreviation catches "e.g." and "i.e.": a single letter on each side of the dot
func isAbbreviation(s string, start, end int) bool {
	if end-start != 2 || start == 0 || !isLetter(s[start-1]) {
		return false
	}
	return start == 1 || !isWordByte(s[start-2])
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isLetter(b byte) bool { return b >= 'a' && b <= 'z' }
func isWordByte(b byte) bool {
	return isDigit(b) || isLetter(b) || b == '_' || b >= 'A' && b <= 'Z'
}

// extractPaths collects slash-terminated tokens and "in/under/from WORD" phrases.
// Tokens that follow an exclusion word are skipped.
func (e *Extractor) extractPaths(text string) []string {
	paths := []string{}

	excluded := false
	for _, raw := range strings.Fields(text) {
		token := strings.TrimLeft(raw, "\"'`([{")
		token = strings.TrimRight(token, "\"'`)]},;:.!?")
		afterExclusion := excluded
		excluded = e.exclusionWords.MatchString(strings.ToLower(token))
		if !strings.HasSuffix(token, "/") && !strings.HasSuffix(token, "\\") {
			continue
		}
		if afterExclusion {
			continue
		}
		if p, ok := e.normalizeFragment(token); ok {
			paths = appendUnique(paths, p)
		}
	}

	for _, m := range e.locationPhrase.FindAllStringSubmatch(text, -1) {
		word := strings.TrimRight(m[1], ".-")
		if strings.HasPrefix(word, ".") && !strings.ContainsAny(word, "/\\") {
			continue
		}
		// a file reference scopes to its directory
		if dir, ok := fileDirectory(word); ok {
			if dir == "" {
				continue
			}
			word = dir
		}
		if p, ok := e.normalizeFragment(word); ok {
			paths = appendUnique(paths, p)
		}
	}

	return paths
}

// fileDirectory splits a word whose last segment carries an extension, such
// as "src/app.ts", into its directory part. ok is false for plain folders.
func fileDirectory(word string) (string, bool) {
	p := strings.ReplaceAll(word, "\\", "/")
	if strings.HasSuffix(p, "/") {
		return "", false
	}
	idx := strings.LastIndex(p, "/")
	last := p[idx+1:]
	dot := strings.LastIndex(last, ".")
	if dot <= 0 || dot == len(last)-1 {
		return "", false
	}
	return p[:idx+1], true
}

// normalizeFragment converts a candidate to forward-slash, trailing-slash form
// and rejects stopwords, purely numeric tokens and durations like "10s".
func (e *Extractor) normalizeFragment(token string) (string, bool) {
	p := strings.ReplaceAll(token, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}

	core := strings.ToLower(strings.Trim(p, "/"))
	if core == "" || core == "." || core == ".." {
		return "", false
	}
	if _, stop := e.stopwords[core]; stop {
		return "", false
	}
	if e.durationToken.MatchString(core) {
		return "", false
	}

	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p, true
}

// extractCount returns the first count found by the pattern families in priority order
func (e *Extractor) extractCount(lower string) (int, bool) {
	for _, pattern := range e.countPatterns {
		m := pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// extractWindow converts "within N units" into seconds
func (e *Extractor) extractWindow(lower string) (int, bool) {
	m := e.windowPattern.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	multiplier := 1
	switch unit := m[2]; {
	case strings.HasPrefix(unit, "h"):
		multiplier = 3600
	case strings.HasPrefix(unit, "m"):
		multiplier = 60
	}

	seconds := n * multiplier
	if seconds <= 0 || seconds/multiplier != n {
		return 0, false
	}
	return seconds, true
}

func appendUnique(values []string, v string) []string {
	if slices.Contains(values, v) {
		return values
	}
	return append(values, v)
}

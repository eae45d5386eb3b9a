package compiler

import "strings"

const promptTemplate = `You convert a file-change alert condition into a JSON rule.
Respond with exactly one JSON object and nothing else. No prose, no markdown.

Allowed shapes:

1. Fire on every matching file event:
{"type":"pattern","match":{"pathIncludes":["src/"],"pathExcludes":["src/vendor/"],"extensions":[".ts"],"eventTypes":["created","modified","deleted"]}}

2. Fire when COUNT matching events happen within WINDOW seconds:
{"type":"threshold","match":{"pathIncludes":["logs/"],"extensions":[".log"],"eventTypes":["modified"]},"windowSeconds":60,"count":5}

3. The condition cannot be expressed as a file-change rule:
{"reject":{"reason":"short reason","details":"optional explanation"}}

Rules:
- Every match field is optional. Omit a field instead of guessing.
- extensions start with a dot.
- eventTypes only use created, modified, deleted.
- pathIncludes and pathExcludes are path fragments with forward slashes.
- Only use pathExcludes when the condition explicitly excludes or ignores something.
- windowSeconds and count are integers and only appear on threshold rules.

Condition: %CONDITION%
JSON:`

// buildPrompt embeds the condition in the instruction template
func buildPrompt(condition string) string {
	condition = strings.ReplaceAll(strings.TrimSpace(condition), "\n", " ")
	return strings.Replace(promptTemplate, "%CONDITION%", condition, 1)
}

package assistant

import "strings"

// FixPreamble prefixes every fix instruction sent to the assistant.
const FixPreamble = "Thinking like the worlds greatest programmer, resolve these pylint warnings: "

// answerYes and answerNo are the two line answers the session writes to
// the child's stdin in response to interactive prompts.
const (
	answerYes = "Yes"
	answerNo  = "No"
)

// fixPromptAnswers maps known assistant prompts to affirmative answers.
// Prompts are matched by substring against the ANSI-stripped line. The
// "Add ... to the chat?" prompt needs both fragments present.
var fixPromptAnswers = []struct {
	contains []string
	answer   string
}{
	{[]string{"Attempt to fix lint errors?"}, answerYes},
	{[]string{"Allow creation of new file?"}, answerYes},
	{[]string{"Add", "to the chat?"}, answerYes},
	{[]string{"Allow edits to file that has not been added to the chat?"}, answerYes},
}

// fixAnswer selects the canned answer for a prompt line in fix mode.
// Unknown prompts get a conservative No.
func fixAnswer(line string) string {
	for _, p := range fixPromptAnswers {
		matched := true
		for _, frag := range p.contains {
			if !strings.Contains(line, frag) {
				matched = false
				break
			}
		}
		if matched {
			return p.answer
		}
	}
	return answerNo
}

// askAnswer always declines: in ask mode the assistant must never be
// allowed to edit anything.
func askAnswer(string) string {
	return answerNo
}

// fixArgs builds the argument vector for a fix invocation. The target
// file is always the final positional argument.
func fixArgs(instruction, model, weakModel, target string) []string {
	return []string{
		"--message", FixPreamble + instruction,
		"--model", model,
		"--weak-model", weakModel,
		"--cache-prompts",
		target,
	}
}

// askArgs builds the argument vector for an ask invocation against a
// temporary snippet file.
func askArgs(question, model, weakModel, target string) []string {
	return []string{
		"--chat-mode", "ask",
		"--message", question,
		"--model", model,
		"--weak-model", weakModel,
		"--cache-prompts",
		target,
	}
}

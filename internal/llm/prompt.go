package llm

import "fmt"

// DefaultSystemPrompt frames the assistant for spoken replies. Responses
// feed a speech synthesizer, so brevity matters more than completeness.
const DefaultSystemPrompt = "You are a helpful voice assistant. Answer in one or two short spoken " +
	"sentences. Never use markdown, lists, or emoji. When given the result of a " +
	"function call, relay the outcome naturally instead of repeating it verbatim."

// FunctionPrompt builds the user turn that asks the model to narrate an
// executed action back to the speaker.
func FunctionPrompt(function string, success bool, result string, userText string) string {
	return fmt.Sprintf("Function %s executed. Success: %t. Result: %s. The user asked: %q. Tell the user the outcome.",
		function, success, result, userText)
}

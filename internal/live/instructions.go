package live

import (
	"fmt"
	"strings"
)

// Topic is the conversation scenario a session is started with.
type Topic struct {
	ID          string
	Title       string
	Instruction string
}

// BuildInstructions derives the system instruction for topic. The tutor holds
// the conversation in the language the learner is practising and falls back
// to targetLanguage only for short explanations.
func BuildInstructions(topic Topic, targetLanguage string) string {
	if targetLanguage == "" {
		targetLanguage = "English"
	}
	var b strings.Builder
	b.WriteString("You are a patient, encouraging language tutor holding a spoken conversation with a learner.\n")
	if topic.Title != "" {
		fmt.Fprintf(&b, "Topic: %s.\n", topic.Title)
	}
	if topic.Instruction != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", strings.TrimSpace(topic.Instruction))
	}
	b.WriteString("Open the conversation yourself with a short greeting that fits the scenario. ")
	b.WriteString("Keep each reply to one or two sentences and end with a question so the learner keeps talking. ")
	b.WriteString("When the learner makes a mistake, repeat their sentence correctly once and carry on without lecturing. ")
	fmt.Fprintf(&b, "If the learner is stuck or asks for help, explain briefly in %s, then return to the conversation.", targetLanguage)
	return b.String()
}

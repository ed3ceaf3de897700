package agent

import (
	"fmt"
	"strings"

	"github.com/courtside/courtside/internal/domain"
	"github.com/courtside/courtside/internal/llm"
)

// promptHistoryWindow bounds how much conversation history is embedded in
// the prompt. This is independent of the storage retention limit.
const promptHistoryWindow = 10

const personaPrompt = `You are an expert NBA analyst and basketball coach with deep knowledge of
statistics, player performance, team dynamics, rules, strategy and training.
Provide accurate, helpful information about NBA basketball, players, teams
and games. Use data-driven insights and maintain an engaging, conversational
tone. Break complex concepts into digestible parts and adjust explanations
to the user's knowledge level. If live data is unavailable for a question,
say so and answer from general basketball knowledge.`

// BuildSystemPrompt renders the assistant persona plus session context.
func BuildSystemPrompt(state *domain.SessionState) string {
	var b strings.Builder
	b.WriteString(personaPrompt)
	b.WriteString("\n\nConversation context:\n")

	fmt.Fprintf(&b, "- User knowledge level: %s\n", state.UserLevel)
	topics := "None yet"
	if len(state.TopicsDiscussed) > 0 {
		topics = strings.Join(state.TopicsDiscussed, ", ")
	}
	fmt.Fprintf(&b, "- Topics discussed so far: %s\n", topics)
	fmt.Fprintf(&b, "- This is message #%d in the conversation; maintain continuity.", state.MessageCount+1)

	return b.String()
}

// BuildUserPrompt embeds the context digest and the literal question.
func BuildUserPrompt(contextData *ContextData, question string) string {
	var b strings.Builder
	b.WriteString("Context data:\n")
	b.WriteString(contextData.Digest())
	b.WriteString("\n\nUser question: ")
	b.WriteString(question)
	return b.String()
}

// BuildMessages assembles the full message list for the completion call:
// system prompt, recent history, then the current user turn.
func BuildMessages(state *domain.SessionState, contextData *ContextData, question string) []llm.Message {
	messages := []llm.Message{
		{Role: domain.RoleSystem, Content: BuildSystemPrompt(state)},
	}

	for _, msg := range state.RecentHistory(promptHistoryWindow) {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	messages = append(messages, llm.Message{
		Role:    domain.RoleUser,
		Content: BuildUserPrompt(contextData, question),
	})

	return messages
}

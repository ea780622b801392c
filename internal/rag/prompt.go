package rag

import (
	"fmt"
	"sort"
	"strings"
)

// SearchKeyPrompt asks for a short retrieval query that keeps the customer's
// question and adds only missing context from the recent turns and profile.
func SearchKeyPrompt(history, question string, profile map[string]string) string {
	var b strings.Builder
	b.WriteString("Write a short search query for the customer's question.\n\n")
	if history != "" {
		b.WriteString("Previous conversation:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	if len(profile) > 0 {
		b.WriteString("Known customer information:\n")
		b.WriteString(formatProfile(profile))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Rules:\n")
	b.WriteString("- Keep the question as is when it is already complete.\n")
	b.WriteString("- Only add names or details the question is missing from the context.\n")
	b.WriteString("- At most ten words. Return the query only.\n")
	return b.String()
}

// AnswerInput is everything the answer prompt is assembled from.
type AnswerInput struct {
	Question string
	Chunks   []Chunk
	Profile  map[string]string
	Required []string
	Optional []string
	History  string
}

// AnswerPrompt builds the grounded answer prompt.
func AnswerPrompt(in AnswerInput) string {
	var b strings.Builder
	b.WriteString("You are a customer support consultant. Answer only from the knowledge below.\n")
	b.WriteString("If the knowledge does not cover the question, say you will check and follow up.\n\n")

	b.WriteString("=== KNOWLEDGE ===\n")
	for i, c := range in.Chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(c.Text))
	}

	b.WriteString("\n=== KNOWN CUSTOMER INFORMATION ===\n")
	if len(in.Profile) == 0 {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(formatProfile(in.Profile))
	}

	if len(in.Required)+len(in.Optional) > 0 {
		b.WriteString("\n=== INFORMATION TO COLLECT ===\n")
		for _, f := range in.Required {
			if _, known := in.Profile[f]; !known {
				fmt.Fprintf(&b, "- %s (required)\n", f)
			}
		}
		for _, f := range in.Optional {
			if _, known := in.Profile[f]; !known {
				fmt.Fprintf(&b, "- %s (optional)\n", f)
			}
		}
		b.WriteString("Never ask again for information listed as known.\n")
	}

	b.WriteString("\n=== CONVERSATION ===\n")
	if in.History != "" {
		b.WriteString(in.History)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "customer: %s\n\n", in.Question)
	b.WriteString("=== YOUR REPLY ===\n")
	return b.String()
}

func formatProfile(profile map[string]string) string {
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, profile[k])
	}
	return b.String()
}

// Package prompt renders requests into provider-facing instructions and produces the
// deterministic fallback text used when the provider fails.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FallbackContentRunes bounds how much of the caller's content is echoed into fallback text.
const FallbackContentRunes = 100

// ProbePrompt is the fixed question used to check that the provider answers at all.
const ProbePrompt = "What is 2+2?"

var taskPrefixes = map[string]string{
	"financial":  "Analyze this financial question and provide specific insights: ",
	"marketing":  "Create a marketing solution for: ",
	"strategy":   "Provide strategic business advice for: ",
	"operations": "Suggest operational improvements for: ",
	"general":    "",
}

var generationPrefixes = map[string]string{
	"marketing": "Create engaging marketing content for: ",
	"email":     "Write a professional business email based on: ",
	"report":    "Generate a business report for: ",
	"code":      "Generate clean, commented code for: ",
}

var fallbackTexts = map[string]string{
	"financial":  "Based on the financial query, I recommend reviewing your cash flow, optimizing expenses, and maintaining a 20% profit margin target.",
	"marketing":  "For this marketing challenge, consider focusing on your target audience, creating engaging content, and measuring ROI across channels.",
	"strategy":   "Strategically, prioritize customer retention, operational efficiency, and sustainable growth while managing risks.",
	"operations": "To optimize operations, implement process automation, improve inventory management, and enhance quality control.",
}

const suggestionTemplate = `Generate %d creative and memorable domain name suggestions for a %s business.
Keywords/themes: %s

Requirements:
- Suggest only the domain names without .com extension
- Make them unique, brandable, and easy to remember
- Avoid hyphens when possible
- Consider industry relevance
- Return as a JSON array of strings

Example format: ["DomainName1", "DomainName2", "DomainName3"]`

// Task prefixes content with the instruction for taskType. Unknown types pass content through.
func Task(taskType, content string) string {
	return taskPrefixes[normalizeType(taskType)] + content
}

// Suggestions asks for limit brandable names for industry. keywords are expected normalized.
func Suggestions(industry string, keywords []string, limit int) string {
	themes := "general business"
	if len(keywords) > 0 {
		themes = strings.Join(keywords, ", ")
	}
	return fmt.Sprintf(suggestionTemplate, limit, industry, themes)
}

// Generation renders a content-generation instruction with ctx embedded as JSON.
func Generation(contentType string, ctx map[string]any) string {
	doc := "{}"
	if len(ctx) > 0 {
		if raw, err := json.Marshal(ctx); err == nil {
			doc = string(raw)
		}
	}
	if prefix, ok := generationPrefixes[normalizeType(contentType)]; ok {
		return prefix + doc
	}
	return fmt.Sprintf("Generate %s content: %s", contentType, doc)
}

// Fallback returns canned advice for taskType. The result is never empty.
func Fallback(taskType, content string) string {
	t := normalizeType(taskType)
	if text, ok := fallbackTexts[t]; ok {
		return text
	}
	snippet := truncate(strings.TrimSpace(content), FallbackContentRunes)
	if t == "general" {
		return fmt.Sprintf("I'll help you with: %s. Focus on efficiency, measurement, and continuous improvement.", snippet)
	}
	return "Processing your request: " + snippet
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

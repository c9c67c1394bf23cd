package messaging

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// ThreadSummary is the structured bundle aggregate_thread/summarize_thread
// returns: participants, counts, timestamps, and lightly-extracted action
// items and key points. Optional LLM refinement is a pluggable step that
// consumes this same bundle.
type ThreadSummary struct {
	ThreadID     string    `json:"thread_id"`
	Participants []string  `json:"participants"`
	MessageCount int       `json:"message_count"`
	FirstTS      time.Time `json:"first_ts"`
	LastTS       time.Time `json:"last_ts"`
	ActionItems  []string  `json:"action_items"`
	KeyPoints    []string  `json:"key_points"`
}

var actionItemPattern = regexp.MustCompile(`(?m)^\s*(?:-\s*\[ \]|-\s*ACTION:|TODO:)\s*(.+)$`)

var headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

// SummarizeThread builds a ThreadSummary from the raw messages of a thread,
// ordered ascending by creation time. senderNames maps sender agent id to
// display name for the participants list.
func SummarizeThread(threadID string, messages []Message, senderNames map[string]string) ThreadSummary {
	summary := ThreadSummary{ThreadID: threadID, MessageCount: len(messages)}
	if len(messages) == 0 {
		return summary
	}

	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedTS.Before(sorted[j].CreatedTS) })

	summary.FirstTS = sorted[0].CreatedTS
	summary.LastTS = sorted[len(sorted)-1].CreatedTS

	seen := make(map[string]bool)
	for _, msg := range sorted {
		name := senderNames[msg.SenderID]
		if name == "" {
			name = msg.SenderID
		}
		if !seen[name] {
			seen[name] = true
			summary.Participants = append(summary.Participants, name)
		}

		for _, match := range actionItemPattern.FindAllStringSubmatch(msg.BodyMD, -1) {
			summary.ActionItems = append(summary.ActionItems, strings.TrimSpace(match[1]))
		}

		headings := headingPattern.FindAllStringSubmatch(msg.BodyMD, -1)
		if len(headings) > 0 {
			for _, h := range headings {
				summary.KeyPoints = append(summary.KeyPoints, strings.TrimSpace(h[1]))
			}
			continue
		}
		if firstSentence := firstSentence(msg.BodyMD); firstSentence != "" {
			summary.KeyPoints = append(summary.KeyPoints, firstSentence)
		}
	}

	return summary
}

func firstSentence(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if idx := strings.IndexAny(body, ".\n"); idx > 0 {
		return strings.TrimSpace(body[:idx])
	}
	return body
}

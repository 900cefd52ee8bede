package broadcast

import "strings"

// ReminderLine asks workers to acknowledge before starting work.
const ReminderLine = "作業開始前に必ず内容を確認し、「確認しました」と返信してください。"

// Message is the structured form of a KY notification.
type Message struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Note  string `json:"note,omitempty"`
}

// Compose renders m as title, reminder, note, link. Blank optional fields are
// omitted. A blank title yields "" so the caller's emptiness check rejects it.
func Compose(m Message) string {
	title := strings.TrimSpace(m.Title)
	if title == "" {
		return ""
	}
	lines := []string{"【KY】" + title, ReminderLine}
	if note := strings.TrimSpace(m.Note); note != "" {
		lines = append(lines, "備考: "+note)
	}
	if url := strings.TrimSpace(m.URL); url != "" {
		lines = append(lines, "詳細: "+url)
	}
	return strings.Join(lines, "\n")
}

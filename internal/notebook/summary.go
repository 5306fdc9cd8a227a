package notebook

import (
	"fmt"
	"strconv"
	"strings"
)

// Summarize renders the line-oriented text used for embedding and duplicate
// comparison. The output depends only on the record's name and payload.
func Summarize(r Record) string {
	name := r.Name
	if name == "" {
		name = NameOf(r.Payload)
	}
	pages := asSlice(r.Payload["pages"])

	var b strings.Builder
	fmt.Fprintf(&b, "Notebook: %s\n", name)
	fmt.Fprintf(&b, "Total Pages: %d\n\n", len(pages))

	for _, p := range pages {
		page, _ := p.(map[string]any)
		if header, ok := pageHeader(page); ok {
			b.WriteString(header)
			b.WriteByte('\n')
		}
		for _, it := range asSlice(page["extracted_items"]) {
			item, _ := it.(map[string]any)
			content := text(item["content"])
			if t := text(item["time"]); t != "" {
				b.WriteString(t + " - " + content)
			} else {
				b.WriteString(content)
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// Lines splits a summary into lines without altering their text.
func Lines(summary string) []string {
	if summary == "" {
		return nil
	}
	return strings.Split(summary, "\n")
}

func pageHeader(page map[string]any) (string, bool) {
	idx, hasIdx := page["page_index"]
	var file any
	if meta, ok := page["page_metadata"].(map[string]any); ok {
		file = meta["file_name"]
	}
	if (!hasIdx || idx == nil) && text(file) == "" {
		return "", false
	}
	fileName := text(file)
	if fileName == "" {
		fileName = "unknown"
	}
	return fmt.Sprintf("Page %s: %s", text(idx), fileName), true
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// text renders scalars the way they appear in the source JSON.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

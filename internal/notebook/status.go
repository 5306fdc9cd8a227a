package notebook

import (
	"errors"
	"fmt"
	"time"
)

// Item types whose status may change.
const (
	ItemTask  = "task"
	ItemEvent = "event"
)

var (
	ErrPageNotFound  = errors.New("page not found")
	ErrItemIndex     = errors.New("invalid item index")
	ErrNotUpdatable  = errors.New("item type has no status")
	ErrInvalidStatus = errors.New("invalid status for item type")
)

// Bullet journal symbols keyed by item type, then status.
var symbols = map[string]map[string]string{
	ItemTask: {
		"incomplete":  "•",
		"completed":   "X",
		"in_progress": "/",
	},
	ItemEvent: {
		"scheduled": "O",
		"completed": "●",
	},
}

// SymbolFor returns the journal symbol for an item type and status.
func SymbolFor(itemType, status string) (string, bool) {
	sym, ok := symbols[itemType][status]
	return sym, ok
}

// StatusChange describes the outcome of UpdateItemStatus.
type StatusChange struct {
	PageIndex int    `json:"page_index"`
	ItemIndex int    `json:"item_index"`
	Status    string `json:"updated_status"`
	Symbol    string `json:"updated_symbol"`
	Changed   bool   `json:"changed"`
}

// UpdateItemStatus sets the status and matching symbol of one extracted item in
// place. Completed items also get a completed_at timestamp.
func UpdateItemStatus(r *Record, pageIndex, itemIndex int, status string, now time.Time) (StatusChange, error) {
	change := StatusChange{PageIndex: pageIndex, ItemIndex: itemIndex, Status: status}

	page := findPage(r.Payload, pageIndex)
	if page == nil {
		return change, fmt.Errorf("%w: %d", ErrPageNotFound, pageIndex)
	}
	items := asSlice(page["extracted_items"])
	if itemIndex < 0 || itemIndex >= len(items) {
		return change, fmt.Errorf("%w: %d", ErrItemIndex, itemIndex)
	}
	item, ok := items[itemIndex].(map[string]any)
	if !ok {
		return change, fmt.Errorf("%w: %d", ErrItemIndex, itemIndex)
	}

	itemType := text(item["type"])
	if itemType != ItemTask && itemType != ItemEvent {
		return change, fmt.Errorf("%w: %q", ErrNotUpdatable, itemType)
	}
	sym, ok := SymbolFor(itemType, status)
	if !ok {
		return change, fmt.Errorf("%w: %s %q", ErrInvalidStatus, itemType, status)
	}
	change.Symbol = sym

	if text(item["status"]) == status && text(item["symbol"]) == sym {
		return change, nil
	}
	item["status"] = status
	item["symbol"] = sym
	if status == "completed" {
		item["completed_at"] = now.UTC().Format(time.RFC3339)
	}
	change.Changed = true
	return change, nil
}

func findPage(payload map[string]any, pageIndex int) map[string]any {
	want := fmt.Sprint(pageIndex)
	for _, p := range asSlice(payload["pages"]) {
		page, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if text(page["page_index"]) == want {
			return page
		}
	}
	return nil
}

package job

import "encoding/json"

// WorkItem is a single indivisible unit of input, immutable once
// created. Data is an arbitrary structured value extracted from the
// user-supplied input by a path expression.
type WorkItem struct {
	ID   ItemID          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Clone returns a deep copy of the WorkItem's Data so callers may
// mutate the copy without affecting the stored item.
func (w WorkItem) Clone() WorkItem {
	data := make(json.RawMessage, len(w.Data))
	copy(data, w.Data)
	return WorkItem{ID: w.ID, Data: data}
}

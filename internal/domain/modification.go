package domain

import "fmt"

// ModAction is the operation of a canonical modification record.
type ModAction string

const (
	ModNone    ModAction = ""
	ModAdd     ModAction = "add"
	ModRemove  ModAction = "remove"
	ModReplace ModAction = "replace"
	ModModify  ModAction = "modify"
	ModCancel  ModAction = "cancel"
)

// Modification is the single canonical description of an order mutation.
// OldQty of zero on a remove means the whole line.
type Modification struct {
	Action  ModAction `json:"action"`
	OldItem string    `json:"oldItem,omitempty"`
	NewItem string    `json:"newItem,omitempty"`
	OldQty  int       `json:"oldQty,omitempty"`
	NewQty  int       `json:"newQty,omitempty"`
}

// IsNull reports whether the record carries no action.
func (m Modification) IsNull() bool {
	return m.Action == ModNone
}

func (m Modification) String() string {
	switch m.Action {
	case ModAdd:
		return fmt.Sprintf("add %s x%d", m.NewItem, m.NewQty)
	case ModRemove:
		if m.OldQty == 0 {
			return fmt.Sprintf("remove all %s", m.OldItem)
		}
		return fmt.Sprintf("remove %s x%d", m.OldItem, m.OldQty)
	case ModReplace:
		return fmt.Sprintf("replace %s with %s x%d", m.OldItem, m.NewItem, m.NewQty)
	case ModModify:
		return fmt.Sprintf("set %s to %d", m.OldItem, m.NewQty)
	case ModCancel:
		return "cancel"
	}
	return "none"
}

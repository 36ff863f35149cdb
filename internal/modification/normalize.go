// Package modification turns the many shapes a backend may use to describe an
// order change into one canonical record, and applies that record to an order.
package modification

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"order-agent/internal/domain"
)

// Normalizer maps raw modification objects onto domain.Modification.
type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

type shapeFunc func(raw map[string]any, action string) (domain.Modification, bool)

// shapes are tried in order after cancel; the first match wins.
var shapes = []shapeFunc{
	quantitySetShape,
	flatAddShape,
	flatRemoveShape,
	deltaMapShape,
	camelObjectsShape,
	oldNewObjectsShape,
	productShape,
	articleObjectsShape,
	removeByIDShape,
	oldItemWithNewShape,
	oldItemAloneShape,
	itemAloneShape,
	newItemAloneShape,
}

// Normalize returns the canonical record for raw. reportedAction is the
// action that accompanied the object; an "action" key inside raw takes
// precedence. Unknown shapes yield the null-action record.
func (n *Normalizer) Normalize(raw map[string]any, reportedAction string) domain.Modification {
	action := effectiveAction(raw, reportedAction)
	if action == string(domain.ModCancel) {
		return domain.Modification{Action: domain.ModCancel}
	}
	if len(raw) == 0 {
		return domain.Modification{}
	}
	for _, shape := range shapes {
		if m, ok := shape(raw, action); ok {
			return m
		}
	}
	n.logger.Warn("unrecognised modification shape",
		zap.String("action", action),
		zap.String("modification", Describe(raw)),
	)
	return domain.Modification{}
}

// SplitDeltas splits a quantity-delta map with several entries into one
// object per item, in sorted key order. Other objects are returned as is.
func SplitDeltas(raw map[string]any) []map[string]any {
	deltas, ok := raw["quantity"].(map[string]any)
	if !ok || len(deltas) <= 1 {
		return []map[string]any{raw}
	}
	out := make([]map[string]any, 0, len(deltas))
	for _, name := range sortedKeys(deltas) {
		cp := make(map[string]any, len(raw))
		for k, v := range raw {
			cp[k] = v
		}
		cp["quantity"] = map[string]any{name: deltas[name]}
		out = append(out, cp)
	}
	return out
}

func effectiveAction(raw map[string]any, reported string) string {
	if a, ok := raw["action"].(string); ok && strings.TrimSpace(a) != "" {
		return strings.ToLower(strings.TrimSpace(a))
	}
	return strings.ToLower(strings.TrimSpace(reported))
}

func quantitySetShape(raw map[string]any, action string) (domain.Modification, bool) {
	if action != string(domain.ModModify) {
		return domain.Modification{}, false
	}
	name := firstName(raw, "item", "old_item", "new_item")
	qty, ok := signedInt(raw["quantity"])
	if name == "" || !ok {
		return domain.Modification{}, false
	}
	return domain.Modification{Action: domain.ModModify, OldItem: name, NewItem: name, NewQty: qty}, true
}

// flatAddShape and flatRemoveShape only cover the bare item/quantity form;
// records naming an old or new side belong to oldItemWithNewShape.
func flatAddShape(raw map[string]any, action string) (domain.Modification, bool) {
	name := firstName(raw, "item")
	if action != string(domain.ModAdd) || name == "" || hasSides(raw) {
		return domain.Modification{}, false
	}
	return domain.Modification{Action: domain.ModAdd, NewItem: name, NewQty: quantityOr(raw, 1, "quantity")}, true
}

func flatRemoveShape(raw map[string]any, action string) (domain.Modification, bool) {
	name := firstName(raw, "item")
	if action != string(domain.ModRemove) || name == "" || hasSides(raw) {
		return domain.Modification{}, false
	}
	return domain.Modification{Action: domain.ModRemove, OldItem: name, OldQty: quantityOr(raw, 0, "quantity")}, true
}

func deltaMapShape(raw map[string]any, _ string) (domain.Modification, bool) {
	deltas, ok := raw["quantity"].(map[string]any)
	if !ok {
		return domain.Modification{}, false
	}
	for _, name := range sortedKeys(deltas) {
		d, ok := signedInt(deltas[name])
		switch {
		case !ok || d == 0:
			continue
		case d < 0:
			return domain.Modification{Action: domain.ModRemove, OldItem: name, OldQty: -d}, true
		default:
			return domain.Modification{Action: domain.ModAdd, NewItem: name, NewQty: d}, true
		}
	}
	return domain.Modification{}, false
}

func camelObjectsShape(raw map[string]any, _ string) (domain.Modification, bool) {
	return replaceFromObjects(raw, "oldItem", "newItem", "articleName", "name")
}

func oldNewObjectsShape(raw map[string]any, _ string) (domain.Modification, bool) {
	return replaceFromObjects(raw, "old", "new", "article_name", "name")
}

func articleObjectsShape(raw map[string]any, _ string) (domain.Modification, bool) {
	return replaceFromObjects(raw, "article_old", "article_new", "name")
}

func productShape(raw map[string]any, _ string) (domain.Modification, bool) {
	oldName := nameOf(raw["product"])
	newName := nameOf(raw["new_product"])
	if oldName == "" || newName == "" {
		return domain.Modification{}, false
	}
	qty := 1
	if obj, ok := raw["new_product"].(map[string]any); ok {
		qty = quantityOr(obj, 0, "quantity")
	}
	if qty == 0 {
		qty = quantityOr(raw, 1, "new_quantity", "quantity")
	}
	return domain.Modification{Action: domain.ModReplace, OldItem: oldName, NewItem: newName, NewQty: qty}, true
}

func removeByIDShape(raw map[string]any, _ string) (domain.Modification, bool) {
	name := firstName(raw, "item_id_to_remove", "article_id_to_remove")
	if name == "" {
		return domain.Modification{}, false
	}
	return domain.Modification{Action: domain.ModRemove, OldItem: name, OldQty: quantityOr(raw, 0, "quantity")}, true
}

func oldItemWithNewShape(raw map[string]any, action string) (domain.Modification, bool) {
	oldName := firstName(raw, "old_item")
	if oldName == "" {
		return domain.Modification{}, false
	}
	if _, hasNew := raw["new_item"]; !hasNew {
		if _, hasItem := raw["item"]; !hasItem {
			return domain.Modification{}, false
		}
	}
	newName := firstName(raw, "new_item", "item")
	if newName == "" || domain.SameName(oldName, newName) || action == string(domain.ModRemove) {
		return domain.Modification{Action: domain.ModRemove, OldItem: oldName, OldQty: quantityOr(raw, 0, "quantity", "old_quantity")}, true
	}
	return domain.Modification{Action: domain.ModReplace, OldItem: oldName, NewItem: newName, NewQty: quantityOr(raw, 1, "quantity", "new_quantity")}, true
}

func oldItemAloneShape(raw map[string]any, _ string) (domain.Modification, bool) {
	name := firstName(raw, "old_item")
	if name == "" {
		return domain.Modification{}, false
	}
	return domain.Modification{Action: domain.ModRemove, OldItem: name, OldQty: quantityOr(raw, 0, "quantity", "old_quantity")}, true
}

func itemAloneShape(raw map[string]any, action string) (domain.Modification, bool) {
	name := firstName(raw, "item", "article_id_to_add")
	if name == "" {
		return domain.Modification{}, false
	}
	if action == string(domain.ModRemove) {
		return domain.Modification{Action: domain.ModRemove, OldItem: name, OldQty: quantityOr(raw, 0, "quantity")}, true
	}
	return domain.Modification{Action: domain.ModAdd, NewItem: name, NewQty: quantityOr(raw, 1, "quantity")}, true
}

func newItemAloneShape(raw map[string]any, _ string) (domain.Modification, bool) {
	name := firstName(raw, "new_item")
	if name == "" {
		return domain.Modification{}, false
	}
	return domain.Modification{Action: domain.ModAdd, NewItem: name, NewQty: quantityOr(raw, 1, "quantity", "new_quantity")}, true
}

func replaceFromObjects(raw map[string]any, oldKey, newKey string, nameKeys ...string) (domain.Modification, bool) {
	oldObj, ok1 := raw[oldKey].(map[string]any)
	newObj, ok2 := raw[newKey].(map[string]any)
	if !ok1 || !ok2 {
		return domain.Modification{}, false
	}
	oldName := firstName(oldObj, nameKeys...)
	newName := firstName(newObj, nameKeys...)
	if oldName == "" || newName == "" {
		return domain.Modification{}, false
	}
	return domain.Modification{
		Action:  domain.ModReplace,
		OldItem: oldName,
		NewItem: newName,
		OldQty:  quantityOr(oldObj, 0, "quantity"),
		NewQty:  quantityOr(newObj, 1, "quantity"),
	}, true
}

func hasSides(raw map[string]any) bool {
	return firstName(raw, "old_item", "new_item") != ""
}

// firstName returns the first non-empty scalar value among keys.
func firstName(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(raw[k]); s != "" {
			return s
		}
	}
	return ""
}

// nameOf accepts either a plain name or an object carrying one.
func nameOf(v any) string {
	if obj, ok := v.(map[string]any); ok {
		return firstName(obj, "name", "article_name", "articleName")
	}
	return scalarString(v)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

// quantityOr returns the first positive quantity found among keys, or def.
func quantityOr(raw map[string]any, def int, keys ...string) int {
	for _, k := range keys {
		if n, ok := signedInt(raw[k]); ok && n > 0 {
			return n
		}
	}
	return def
}

// quantityLimit saturates parsed quantities so float conversion stays
// defined; the applier rejects anything above domain.MaxQuantity.
const quantityLimit = math.MaxInt32

// signedInt parses a quantity. Values beyond quantityLimit are saturated,
// never wrapped.
func signedInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return saturate(t)
	case int:
		return saturate(float64(t))
	case int64:
		return saturate(float64(t))
	case json.Number:
		return parseQuantity(t.String())
	case string:
		return parseQuantity(t)
	}
	return 0, false
}

func parseQuantity(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return saturate(f)
}

func saturate(f float64) (int, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	f = math.Round(f)
	switch {
	case f > quantityLimit:
		return quantityLimit, true
	case f < -quantityLimit:
		return -quantityLimit, true
	}
	return int(f), true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Describe renders a raw modification for logs and errors.
func Describe(raw map[string]any) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(b)
}

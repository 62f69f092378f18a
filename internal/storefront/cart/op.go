package cart

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// OpKind enumerates cart mutations.
type OpKind string

const (
	OpAdd         OpKind = "add"
	OpSetQuantity OpKind = "set_quantity"
	OpRemove      OpKind = "remove"
	OpClear       OpKind = "clear"
)

// Op is one queued mutation. BaseVersion is the server version the local
// state was derived from, nil when the store has not synced yet.
type Op struct {
	ID          uuid.UUID
	Kind        OpKind
	Product     Product
	Variant     Variant
	ItemID      uuid.UUID
	Quantity    int
	BaseVersion *int64
}

// State is what a backend holds: the items plus the server version.
type State struct {
	Items   []Item
	Version int64
}

// apply computes the optimistic result of op on items.
func (op Op) apply(items []Item) ([]Item, error) {
	next := cloneItems(items)
	switch op.Kind {
	case OpAdd:
		for idx := range next {
			if next[idx].sameLine(op.Product.ID, op.Variant) {
				next[idx].Quantity += op.Quantity
				return next, nil
			}
		}
		return append(next, Item{
			ID:        op.ID,
			ProductID: op.Product.ID,
			Name:      op.Product.Name,
			UnitPrice: op.Product.UnitPrice,
			Quantity:  op.Quantity,
			Size:      op.Variant.Size,
			Color:     op.Variant.Color,
			Edition:   op.Variant.Edition,
			ImageRef:  op.Product.ImageRef,
		}), nil
	case OpSetQuantity:
		idx := indexOf(next, op.ItemID)
		if idx < 0 {
			return nil, itemNotFound(op.ItemID)
		}
		next[idx].Quantity = op.Quantity
		return next, nil
	case OpRemove:
		idx := indexOf(next, op.ItemID)
		if idx < 0 {
			return nil, itemNotFound(op.ItemID)
		}
		return append(next[:idx], next[idx+1:]...), nil
	case OpClear:
		return []Item{}, nil
	default:
		return nil, fmt.Errorf("unknown cart op %q", op.Kind)
	}
}

func indexOf(items []Item, id uuid.UUID) int {
	for idx, item := range items {
		if item.ID == id {
			return idx
		}
	}
	return -1
}

func itemNotFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found").WithDetails(map[string]any{"item_id": id})
}

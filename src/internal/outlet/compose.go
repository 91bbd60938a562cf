package outlet

import (
	"fmt"

	"github.com/wlt-go/wlt/src/internal/errors"
)

// Selection is one group's contribution to a mark.
type Selection struct {
	Mask  uint32
	Value uint32
}

// Compose clears the bits of mask in existing and sets value.
// The caller guarantees value&^mask == 0.
func Compose(existing, mask, value uint32) uint32 {
	return (existing &^ mask) | value
}

// ComposeAll folds several selections into existing, in order.
func ComposeAll(existing uint32, selections []Selection) (uint32, error) {
	mark := existing
	for _, s := range selections {
		if s.Value&^s.Mask != 0 {
			return existing, errors.NewValidationError(
				fmt.Sprintf("value %#x does not fit mask %#x", s.Value, s.Mask), nil)
		}
		mark = Compose(mark, s.Mask, s.Value)
	}
	return mark, nil
}

// Compose sets value in the group's bits of existing.
func (g Group) Compose(existing, value uint32) (uint32, error) {
	if value&^g.Mask != 0 {
		return existing, errors.NewValidationError(
			fmt.Sprintf("value %#x does not fit mask %#x of group %q", value, g.Mask, g.Title), nil)
	}
	return Compose(existing, g.Mask, value), nil
}

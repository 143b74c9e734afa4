package learning

import (
	"fmt"
	"strconv"

	"github.com/sells-group/estimator/internal/model"
)

// Diff describes how edited differs from original, one sentence per change.
// Items are compared by position: inserting a line in the middle reports
// every following line as changed.
func Diff(original, edited []model.LineItem) []string {
	var changes []string
	n := max(len(original), len(edited))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(original):
			e := edited[i]
			changes = append(changes, fmt.Sprintf("Added: %s - %s %s @ $%s",
				e.Description, num(e.Quantity), e.Unit, num(e.Rate)))
		case i >= len(edited):
			changes = append(changes, "Removed: "+original[i].Description)
		default:
			o, e := original[i], edited[i]
			if o.Rate != e.Rate {
				changes = append(changes, fmt.Sprintf("Rate changed for %q: $%s → $%s",
					o.Description, num(o.Rate), num(e.Rate)))
			}
			if o.Quantity != e.Quantity {
				changes = append(changes, fmt.Sprintf("Quantity changed for %q: %s → %s",
					o.Description, num(o.Quantity), num(e.Quantity)))
			}
			if o.Description != e.Description {
				changes = append(changes, fmt.Sprintf("Description changed: %q → %q",
					o.Description, e.Description))
			}
		}
	}
	return changes
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package allocation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ingrealloc/internal/domain"
)

// DefaultMaxItems matches the item picker limit of the allocation form.
const DefaultMaxItems = 10

var (
	ErrEmptyRequest       = errors.New("no items selected")
	ErrTooManyItems       = errors.New("too many items selected")
	ErrNegativeQuantity   = errors.New("quantity cannot be negative")
	ErrNoPositiveQuantity = errors.New("no quantity above zero")
)

// NewRequest collapses duplicate identifiers: the last quantity wins and the
// first position is kept.
func NewRequest(lines []domain.RequestLine) []domain.RequestLine {
	out := make([]domain.RequestLine, 0, len(lines))
	pos := make(map[string]int, len(lines))
	for _, l := range lines {
		if i, ok := pos[l.Identifier]; ok {
			out[i].Quantity = l.Quantity
			continue
		}
		pos[l.Identifier] = len(out)
		out = append(out, l)
	}
	return out
}

// Validate applies the form rules before anything is allocated: one to
// maxItems identifiers, no negative quantity, at least one quantity above zero.
func Validate(lines []domain.RequestLine, maxItems int) error {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if len(lines) == 0 {
		return ErrEmptyRequest
	}
	if len(lines) > maxItems {
		return fmt.Errorf("%w: %d selected, limit is %d", ErrTooManyItems, len(lines), maxItems)
	}
	positive := false
	for _, l := range lines {
		if strings.TrimSpace(l.Identifier) == "" {
			return ErrEmptyRequest
		}
		if l.Quantity < 0 {
			return fmt.Errorf("%w: %s=%g", ErrNegativeQuantity, l.Identifier, l.Quantity)
		}
		if l.Quantity > 0 {
			positive = true
		}
	}
	if !positive {
		return ErrNoPositiveQuantity
	}
	return nil
}

// ParseRequest reads "flour=50, sugar=12.5" style input. Entries are separated
// by newlines or semicolons; commas separate entries only when a segment holds
// more than one "=". A missing quantity defaults to 0.
func ParseRequest(text string) ([]domain.RequestLine, error) {
	var lines []domain.RequestLine
	segments := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ';' })
	for _, seg := range segments {
		parts := []string{seg}
		if strings.Count(seg, "=") > 1 {
			parts = strings.Split(seg, ",")
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			line, err := ParseRequestLine(part)
			if err != nil {
				return nil, err
			}
			lines = append(lines, line)
		}
	}
	return NewRequest(lines), nil
}

// ParseRequestLine parses a single "identifier=quantity" pair.
func ParseRequestLine(s string) (domain.RequestLine, error) {
	name, qty := s, ""
	if i := strings.LastIndex(s, "="); i >= 0 {
		name, qty = s[:i], s[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.RequestLine{}, fmt.Errorf("missing item in %q", s)
	}
	line := domain.RequestLine{Identifier: name}
	qty = strings.TrimSpace(qty)
	if qty == "" {
		return line, nil
	}
	v, err := strconv.ParseFloat(qty, 64)
	if err != nil {
		return domain.RequestLine{}, fmt.Errorf("invalid quantity for %s: %q", name, qty)
	}
	line.Quantity = v
	return line, nil
}

// UserMessage turns a validation error into the wording shown by the UIs.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrTooManyItems):
		return "Too many items: " + strings.TrimPrefix(err.Error(), ErrTooManyItems.Error()+": ") + "."
	case errors.Is(err, ErrNegativeQuantity):
		return "Quantities cannot be negative."
	case errors.Is(err, ErrEmptyRequest), errors.Is(err, ErrNoPositiveQuantity):
		return "Please select valid item(s) and enter a quantity."
	default:
		return err.Error()
	}
}

// NoMatchMessage is shown when none of the requested items has history.
const NoMatchMessage = "No matching data found for the selected items!"

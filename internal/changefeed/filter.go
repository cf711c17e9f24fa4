package changefeed

import (
	"fmt"
	"strings"
)

type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
)

// Filter - условие на колонку в формате "user_id=eq.<значение>".
// Нулевой Filter пропускает всё.
type Filter struct {
	Column string
	Op     FilterOp
	Value  string
}

func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Filter{}, nil
	}
	column, rest, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("неверный фильтр %q: ожидается колонка=оператор.значение", s)
	}
	op, value, ok := strings.Cut(rest, ".")
	if !ok {
		return Filter{}, fmt.Errorf("неверный фильтр %q: нет оператора", s)
	}
	switch FilterOp(op) {
	case OpEq, OpNeq:
	default:
		return Filter{}, fmt.Errorf("неподдерживаемый оператор %q в фильтре %q", op, s)
	}
	return Filter{Column: column, Op: FilterOp(op), Value: value}, nil
}

func Eq(column, value string) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

func (f Filter) IsZero() bool {
	return f.Column == ""
}

func (f Filter) Match(c Change) bool {
	if f.IsZero() {
		return true
	}
	v, ok := c.Field(f.Column)
	switch f.Op {
	case OpEq:
		return ok && v == f.Value
	case OpNeq:
		return !ok || v != f.Value
	}
	return false
}

func (f Filter) String() string {
	if f.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s=%s.%s", f.Column, f.Op, f.Value)
}

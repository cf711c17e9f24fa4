// Package reconcile сводит поток изменений строк с локальным упорядоченным списком.
// Список неизменяемый: каждое применение возвращает новую копию.
package reconcile

import (
	"time"

	"habitTracker/internal/changefeed"

	"github.com/google/uuid"
)

type Record interface {
	Key() uuid.UUID
	Deleted() bool
	Revision() time.Time
}

type Outcome int

const (
	// Ignored - изменение не касается списка (удаление отсутствующей строки, устаревшая версия)
	Ignored Outcome = iota
	Inserted
	Updated
	Removed
	// Echo - эхо локальной мутации: строка уже в списке в той же версии
	Echo
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Echo:
		return "echo"
	}
	return "ignored"
}

// Changed сообщает, что список изменился и соседним срезам нужно событие
func (o Outcome) Changed() bool {
	return o == Inserted || o == Updated || o == Removed
}

type List[T Record] struct {
	items []T
}

// NewList строит список из выборки: удалённые строки и повторы id отбрасываются
func NewList[T Record](rows []T) List[T] {
	items := make([]T, 0, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for _, row := range rows {
		if row.Deleted() {
			continue
		}
		if _, ok := seen[row.Key()]; ok {
			continue
		}
		seen[row.Key()] = struct{}{}
		items = append(items, row)
	}
	return List[T]{items: items}
}

func (l List[T]) Len() int {
	return len(l.items)
}

// Items возвращает копию, вызывающий код не может испортить список
func (l List[T]) Items() []T {
	res := make([]T, len(l.items))
	copy(res, l.items)
	return res
}

func (l List[T]) Get(id uuid.UUID) (T, bool) {
	if i := l.index(id); i >= 0 {
		return l.items[i], true
	}
	var zero T
	return zero, false
}

func (l List[T]) Contains(id uuid.UUID) bool {
	return l.index(id) >= 0
}

func (l List[T]) index(id uuid.UUID) int {
	for i, item := range l.items {
		if item.Key() == id {
			return i
		}
	}
	return -1
}

// Apply разбирает изменение фида по типу
func (l List[T]) Apply(typ changefeed.EventType, row T) (List[T], Outcome) {
	switch typ {
	case changefeed.Insert:
		return l.ApplyInsert(row)
	case changefeed.Update:
		return l.ApplyUpdate(row)
	case changefeed.Delete:
		return l.ApplyDelete(row.Key())
	}
	return l, Ignored
}

// ApplyInsert добавляет строку в начало; уже известный id - это эхо
func (l List[T]) ApplyInsert(row T) (List[T], Outcome) {
	if l.Contains(row.Key()) {
		return l, Echo
	}
	if row.Deleted() {
		return l, Ignored
	}
	return l.prepend(row), Inserted
}

// ApplyUpdate: deleted_at проставлен - логическое удаление, иначе замена на месте.
// Та же версия - эхо, более старая - устаревшее сообщение.
// Живая строка, которой нет в списке (например, ожившая отметка), добавляется в начало.
func (l List[T]) ApplyUpdate(row T) (List[T], Outcome) {
	i := l.index(row.Key())

	if row.Deleted() {
		if i < 0 {
			return l, Ignored
		}
		return l.removeAt(i), Removed
	}

	if i < 0 {
		return l.prepend(row), Inserted
	}

	current := l.items[i]
	switch {
	case row.Revision().Equal(current.Revision()):
		return l, Echo
	case row.Revision().Before(current.Revision()):
		return l, Ignored
	}
	return l.replaceAt(i, row), Updated
}

// ApplyDelete обрабатывает физическое удаление; для пользовательских данных
// бэкенд его не шлёт, но список остаётся корректным и в этом случае
func (l List[T]) ApplyDelete(id uuid.UUID) (List[T], Outcome) {
	i := l.index(id)
	if i < 0 {
		return l, Ignored
	}
	return l.removeAt(i), Removed
}

// Upsert - локальный (оптимистичный) путь после успешной мутации
func (l List[T]) Upsert(row T) List[T] {
	i := l.index(row.Key())
	switch {
	case row.Deleted() && i >= 0:
		return l.removeAt(i)
	case row.Deleted():
		return l
	case i >= 0:
		return l.replaceAt(i, row)
	}
	return l.prepend(row)
}

func (l List[T]) prepend(row T) List[T] {
	items := make([]T, 0, len(l.items)+1)
	items = append(items, row)
	items = append(items, l.items...)
	return List[T]{items: items}
}

func (l List[T]) replaceAt(i int, row T) List[T] {
	items := l.Items()
	items[i] = row
	return List[T]{items: items}
}

func (l List[T]) removeAt(i int) List[T] {
	items := make([]T, 0, len(l.items)-1)
	items = append(items, l.items[:i]...)
	items = append(items, l.items[i+1:]...)
	return List[T]{items: items}
}

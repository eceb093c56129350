package classroom

import "sort"

// RosterDiff - разница между текущим и целевым ростером класса.
type RosterDiff struct {
	// Added - студенты, которых нужно записать в класс.
	Added []string

	// Removed - студенты, которых нужно снять с класса (через каскад).
	Removed []string
}

// IsEmpty проверяет, что ростер не меняется.
func (d RosterDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffRoster сравнивает текущий ростер с целевым. Дубликаты и пустые ID
// в целевом списке игнорируются. Результат отсортирован, чтобы порядок
// обработки каскадом был детерминированным.
func DiffRoster(current, target []string) RosterDiff {
	cur := make(map[string]struct{}, len(current))
	for _, id := range current {
		cur[id] = struct{}{}
	}
	want := make(map[string]struct{}, len(target))
	for _, id := range target {
		if id == "" {
			continue
		}
		want[id] = struct{}{}
	}

	var diff RosterDiff
	for id := range want {
		if _, ok := cur[id]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}
	for id := range cur {
		if _, ok := want[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	return diff
}

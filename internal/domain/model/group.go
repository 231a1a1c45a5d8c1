package model

import (
	"sort"
	"strings"
)

// GroupByBranch группирует артефакты по ветке.
// Группы упорядочены по имени ветки, артефакты внутри группы —
// по возрастанию created_at (при равенстве — по id).
// Входной срез не изменяется.
func GroupByBranch(items []Summary) []BranchGroup {
	sorted := make([]Summary, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return strings.Compare(a.ID.String(), b.ID.String()) < 0
	})

	groups := make([]BranchGroup, 0)
	for _, s := range sorted {
		if n := len(groups); n == 0 || groups[n-1].Branch != s.Branch {
			groups = append(groups, BranchGroup{Branch: s.Branch})
		}
		last := &groups[len(groups)-1]
		last.Artifacts = append(last.Artifacts, s)
	}
	return groups
}

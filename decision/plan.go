package decision

import (
	"fmt"
	"slices"
)

// Plan returns the tables of m in evaluation order.
//
// Table A depends on table B when one of A's input columns is one of B's
// output columns. The order keeps the declared order wherever it already
// satisfies the dependencies: among the tables whose producers have all been
// placed, the earliest declared one always goes next. Output columns
// declared by two tables are DuplicateOutput; dependencies that cannot be
// ordered are CyclicDependency.
func Plan(m *Model) ([]*Table, error) {
	if m == nil || len(m.Tables) == 0 {
		return nil, malformed("model declares no decisions")
	}

	n := len(m.Tables)
	producer := make(map[string]int, n)
	for i, t := range m.Tables {
		for _, column := range t.Outputs {
			if j, exists := producer[column]; exists {
				return nil, duplicateOutput(column,
					fmt.Sprintf("declared as output by both %s and %s", m.Tables[j].ID, t.ID))
			}
			producer[column] = i
		}
	}

	// dependents[j] lists the tables that consume an output of table j.
	dependents := make([][]int, n)
	pending := make([]int, n)
	for i, t := range m.Tables {
		seen := make(map[int]bool)
		for _, column := range t.Inputs {
			j, ok := producer[column]
			if !ok || seen[j] {
				continue
			}
			seen[j] = true
			dependents[j] = append(dependents[j], i)
			pending[i]++
		}
	}

	order := make([]*Table, 0, n)
	placed := make([]bool, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !placed[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, &Error{Kind: KindCyclicDependency, IDs: cycleMembers(m, placed, dependents)}
		}
		placed[next] = true
		order = append(order, m.Tables[next])
		for _, d := range dependents[next] {
			pending[d]--
		}
	}

	return order, nil
}

// cycleMembers returns the unplaced tables that lie on a cycle: members of
// a strongly connected component with more than one table, or tables that
// consume their own output. Tables merely downstream of a cycle, or between
// two cycles, are left out.
func cycleMembers(m *Model, placed []bool, dependents [][]int) []string {
	n := len(m.Tables)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	next := 0
	onCycle := make([]bool, n)

	// Tarjan's algorithm restricted to the unplaced tables.
	var visit func(v int)
	visit = func(v int) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range dependents[v] {
			if placed[w] {
				continue
			}
			if index[w] < 0 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var component []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		if len(component) > 1 || slices.Contains(dependents[v], v) {
			for _, w := range component {
				onCycle[w] = true
			}
		}
	}

	for i := 0; i < n; i++ {
		if !placed[i] && index[i] < 0 {
			visit(i)
		}
	}

	ids := make([]string, 0, n)
	for i, t := range m.Tables {
		if onCycle[i] {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Copyright 2025 The Sah Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

// AdjacencyList builds a state -> list<state> map from transitions.
// Duplicates are preserved: parallel transitions to the same target
// produce duplicate entries.
func AdjacencyList(w *Workflow) map[StateID][]StateID {
	adj := make(map[StateID][]StateID, len(w.States))
	for _, id := range w.StateOrder {
		adj[id] = nil
	}
	for _, t := range w.Transitions {
		adj[t.From] = append(adj[t.From], t.To)
	}
	return adj
}

// ReachableStates returns the set of states reachable from the workflow's
// initial state via a standard DFS.
func ReachableStates(w *Workflow) map[StateID]bool {
	adj := AdjacencyList(w)
	visited := make(map[StateID]bool)
	var visit func(StateID)
	visit = func(id StateID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, next := range adj[id] {
			visit(next)
		}
	}
	visit(w.InitialState)
	return visited
}

// UnreachableStates returns every state not reachable from the initial
// state. ReachableStates(w) and UnreachableStates(w) partition States(w).
func UnreachableStates(w *Workflow) map[StateID]bool {
	reachable := ReachableStates(w)
	unreachable := make(map[StateID]bool)
	for _, id := range w.StateOrder {
		if !reachable[id] {
			unreachable[id] = true
		}
	}
	return unreachable
}

type dfsColor int

const (
	colorWhite dfsColor = iota
	colorGrey
	colorBlack
)

// DetectCycleFrom returns one cycle path reachable from start, or nil if
// none exists, using colour DFS (white/grey/black).
func DetectCycleFrom(w *Workflow, start StateID) []StateID {
	adj := AdjacencyList(w)
	color := make(map[StateID]dfsColor)
	var path []StateID
	var cycle []StateID

	var visit func(StateID) bool
	visit = func(id StateID) bool {
		color[id] = colorGrey
		path = append(path, id)
		for _, next := range adj[id] {
			switch color[next] {
			case colorWhite:
				if visit(next) {
					return true
				}
			case colorGrey:
				// Found a back-edge; extract the cycle from path.
				for i, p := range path {
					if p == next {
						cycle = append([]StateID{}, path[i:]...)
						cycle = append(cycle, next)
						break
					}
				}
				return true
			}
		}
		color[id] = colorBlack
		path = path[:len(path)-1]
		return false
	}

	visit(start)
	return cycle
}

// DetectAllCycles enumerates elementary cycles reachable from the
// workflow's initial state. For the modest state counts workflows have in
// practice, a bounded DFS enumeration (Johnson's algorithm's simple-path
// restriction without the blocking-set optimisation) is sufficient.
func DetectAllCycles(w *Workflow) [][]StateID {
	adj := AdjacencyList(w)
	var cycles [][]StateID
	seen := make(map[string]bool)

	var path []StateID
	onPath := make(map[StateID]int)

	var visit func(StateID)
	visit = func(id StateID) {
		if idx, ok := onPath[id]; ok {
			cyc := append([]StateID{}, path[idx:]...)
			cyc = append(cyc, id)
			key := cycleKey(cyc)
			if !seen[key] {
				seen[key] = true
				cycles = append(cycles, cyc)
			}
			return
		}
		onPath[id] = len(path)
		path = append(path, id)
		for _, next := range adj[id] {
			visit(next)
		}
		path = path[:len(path)-1]
		delete(onPath, id)
	}

	reachable := ReachableStates(w)
	for _, id := range w.StateOrder {
		if reachable[id] {
			visit(id)
		}
	}
	return cycles
}

func cycleKey(cyc []StateID) string {
	s := ""
	for _, id := range cyc {
		s += string(id) + ">"
	}
	return s
}

// AllSimplePaths enumerates every simple path (no repeated state) from u
// to v, stopping once limit paths have been found (limit <= 0 means no
// bound).
func AllSimplePaths(w *Workflow, u, v StateID, limit int) [][]StateID {
	adj := AdjacencyList(w)
	var results [][]StateID
	visited := make(map[StateID]bool)
	var path []StateID

	var visit func(StateID)
	visit = func(cur StateID) {
		if limit > 0 && len(results) >= limit {
			return
		}
		visited[cur] = true
		path = append(path, cur)
		if cur == v {
			results = append(results, append([]StateID{}, path...))
		} else {
			for _, next := range adj[cur] {
				if !visited[next] {
					visit(next)
				}
			}
		}
		path = path[:len(path)-1]
		visited[cur] = false
	}

	visit(u)
	return results
}

// TopologicalSort returns a total order over the reachable subgraph using
// Kahn's algorithm, or (nil, false) iff that subgraph contains a cycle.
func TopologicalSort(w *Workflow) ([]StateID, bool) {
	reachable := ReachableStates(w)
	adj := AdjacencyList(w)

	inDegree := make(map[StateID]int)
	for id := range reachable {
		inDegree[id] = 0
	}
	for _, id := range w.StateOrder {
		if !reachable[id] {
			continue
		}
		for _, next := range adj[id] {
			if reachable[next] {
				inDegree[next]++
			}
		}
	}

	var queue []StateID
	for _, id := range w.StateOrder {
		if reachable[id] && inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []StateID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			if !reachable[next] {
				continue
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(reachable) {
		return nil, false
	}
	return order, true
}

package core

import "math"

// Fixed sorting networks for the dispatch window. The networks are
// data-oblivious: every comparator runs regardless of input, which keeps the
// hot path branch-predictable for the small N the workers use.
//
// Order is descending priority. A nil slot compares as math.MinInt32, one
// below MinPriority, so empty slots always sink to the end.

func nodePriority(n *Schedulable) int32 {
	if n == nil {
		return math.MinInt32
	}
	return n.Priority()
}

// orderPair places the higher-priority node at index i.
func orderPair(nodes []*Schedulable, i, j int) {
	if nodePriority(nodes[j]) > nodePriority(nodes[i]) {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
}

// sortNodes sorts up to nine slots in place by descending priority using the
// network for len(nodes). Larger windows are a programming error; the
// dispatch loop never asks for one.
func sortNodes(nodes []*Schedulable) {
	switch len(nodes) {
	case 0, 1:
	case 2:
		orderPair(nodes, 0, 1)
	case 3:
		orderPair(nodes, 0, 2)
		orderPair(nodes, 0, 1)
		orderPair(nodes, 1, 2)
	case 4:
		orderPair(nodes, 0, 2)
		orderPair(nodes, 1, 3)
		orderPair(nodes, 0, 1)
		orderPair(nodes, 2, 3)
		orderPair(nodes, 1, 2)
	case 5:
		orderPair(nodes, 0, 3)
		orderPair(nodes, 1, 4)
		orderPair(nodes, 0, 2)
		orderPair(nodes, 1, 3)
		orderPair(nodes, 0, 1)
		orderPair(nodes, 2, 4)
		orderPair(nodes, 1, 2)
		orderPair(nodes, 3, 4)
		orderPair(nodes, 2, 3)
	case 6:
		orderPair(nodes, 0, 5)
		orderPair(nodes, 1, 3)
		orderPair(nodes, 2, 4)
		orderPair(nodes, 1, 2)
		orderPair(nodes, 3, 4)
		orderPair(nodes, 0, 3)
		orderPair(nodes, 2, 5)
		orderPair(nodes, 0, 1)
		orderPair(nodes, 2, 3)
		orderPair(nodes, 4, 5)
		orderPair(nodes, 1, 2)
		orderPair(nodes, 3, 4)
	case 7:
		orderPair(nodes, 0, 6)
		orderPair(nodes, 2, 3)
		orderPair(nodes, 4, 5)
		orderPair(nodes, 0, 2)
		orderPair(nodes, 1, 4)
		orderPair(nodes, 3, 6)
		orderPair(nodes, 0, 1)
		orderPair(nodes, 2, 5)
		orderPair(nodes, 3, 4)
		orderPair(nodes, 1, 2)
		orderPair(nodes, 4, 6)
		orderPair(nodes, 2, 3)
		orderPair(nodes, 4, 5)
		orderPair(nodes, 1, 2)
		orderPair(nodes, 3, 4)
		orderPair(nodes, 5, 6)
	case 8:
		orderPair(nodes, 0, 2)
		orderPair(nodes, 1, 3)
		orderPair(nodes, 4, 6)
		orderPair(nodes, 5, 7)
		orderPair(nodes, 0, 4)
		orderPair(nodes, 1, 5)
		orderPair(nodes, 2, 6)
		orderPair(nodes, 3, 7)
		orderPair(nodes, 0, 1)
		orderPair(nodes, 2, 3)
		orderPair(nodes, 4, 5)
		orderPair(nodes, 6, 7)
		orderPair(nodes, 2, 4)
		orderPair(nodes, 3, 5)
		orderPair(nodes, 1, 4)
		orderPair(nodes, 3, 6)
		orderPair(nodes, 1, 2)
		orderPair(nodes, 3, 4)
		orderPair(nodes, 5, 6)
	case 9:
		orderPair(nodes, 0, 3)
		orderPair(nodes, 1, 7)
		orderPair(nodes, 2, 5)
		orderPair(nodes, 4, 8)
		orderPair(nodes, 0, 7)
		orderPair(nodes, 2, 4)
		orderPair(nodes, 3, 8)
		orderPair(nodes, 5, 6)
		orderPair(nodes, 0, 2)
		orderPair(nodes, 1, 3)
		orderPair(nodes, 4, 5)
		orderPair(nodes, 7, 8)
		orderPair(nodes, 1, 4)
		orderPair(nodes, 3, 6)
		orderPair(nodes, 5, 7)
		orderPair(nodes, 0, 1)
		orderPair(nodes, 2, 4)
		orderPair(nodes, 3, 5)
		orderPair(nodes, 6, 8)
		orderPair(nodes, 2, 3)
		orderPair(nodes, 4, 5)
		orderPair(nodes, 6, 7)
		orderPair(nodes, 1, 2)
		orderPair(nodes, 3, 4)
		orderPair(nodes, 5, 6)
	default:
		assertf(false, "no sorting network for window of %d", len(nodes))
	}
}

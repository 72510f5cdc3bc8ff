package swarm

import "gonum.org/v1/gonum/spatial/r3"

// Neighbors returns the ids of all agents within sensing radius of agent i,
// excluding i itself. Pure function of the position snapshot; the fleet is
// small (tens of agents) so the O(N²) pairwise scan needs no spatial index.
func Neighbors(i int, positions []r3.Vec, radius float64) []int {
	var out []int
	r2 := radius * radius
	for j, p := range positions {
		if j == i {
			continue
		}
		d := r3.Sub(positions[i], p)
		if r3.Norm2(d) <= r2 {
			out = append(out, j)
		}
	}
	return out
}

// AllNeighbors computes the neighbor set for every agent from one position
// snapshot. Result row i holds the neighbors of agent i; rows may be empty
// but never contain i itself.
func AllNeighbors(positions []r3.Vec, radius float64) [][]int {
	out := make([][]int, len(positions))
	for i := range positions {
		out[i] = Neighbors(i, positions, radius)
	}
	return out
}

package game

import "sort"

// PotLayer is one side-pot layer. Each layer is capped at an all-in
// commitment level and is eligible only to non-folded seats that
// contributed at or above that level.
type PotLayer struct {
	Amount   int
	Eligible []int // seat numbers, ascending
}

// layeredPots partitions the total committed chips into side-pot layers,
// most constrained first. Folded seats contribute chips to the layers they
// paid into but are never eligible.
func layeredPots(seats map[int]*HandSeat, order []int) []PotLayer {
	// Contribution levels: distinct all-in commitments of non-folded seats,
	// then the overall maximum to sweep up uncapped chips.
	levelSet := make(map[int]bool)
	maxCommitted := 0
	for _, n := range order {
		s := seats[n]
		if s.TotalCommitted > maxCommitted {
			maxCommitted = s.TotalCommitted
		}
		if s.AllIn && !s.Folded && s.TotalCommitted > 0 {
			levelSet[s.TotalCommitted] = true
		}
	}
	if maxCommitted == 0 {
		return nil
	}
	levelSet[maxCommitted] = true

	levels := make([]int, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	var pots []PotLayer
	prev := 0
	carry := 0
	for _, level := range levels {
		layer := PotLayer{Amount: carry}
		carry = 0
		for _, n := range order {
			s := seats[n]
			contribution := min(s.TotalCommitted, level) - min(s.TotalCommitted, prev)
			layer.Amount += contribution
			if !s.Folded && s.TotalCommitted >= level {
				layer.Eligible = append(layer.Eligible, n)
			}
		}
		switch {
		case layer.Amount == 0:
		case len(layer.Eligible) == 0 && len(pots) > 0:
			// Dead chips with no eligible claimant fall into the previous layer
			pots[len(pots)-1].Amount += layer.Amount
		case len(layer.Eligible) == 0:
			carry = layer.Amount
		default:
			pots = append(pots, layer)
		}
		prev = level
	}
	if carry > 0 && len(pots) > 0 {
		pots[0].Amount += carry
	}
	return pots
}

// potTotal returns the combined amount across layers
func potTotal(pots []PotLayer) int {
	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

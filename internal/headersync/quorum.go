package headersync

import "fmt"

// Quorum is the rule deciding how many committee members must sign a
// header.
type Quorum int

const (
	// QuorumStrict requires strictly more than two thirds of the committee.
	QuorumStrict Quorum = iota
	// QuorumPoly requires at least two thirds, rounding the same way the
	// remote chain's own consensus does.
	QuorumPoly
)

// ParseQuorum maps a config name to a Quorum. The empty name selects
// QuorumStrict.
func ParseQuorum(name string) (Quorum, error) {
	switch name {
	case "", "strict":
		return QuorumStrict, nil
	case "poly":
		return QuorumPoly, nil
	default:
		return 0, fmt.Errorf("unknown quorum policy %q", name)
	}
}

func (q Quorum) String() string {
	switch q {
	case QuorumStrict:
		return "strict"
	case QuorumPoly:
		return "poly"
	default:
		return fmt.Sprintf("quorum(%d)", int(q))
	}
}

// Satisfied reports whether n book-keepers are enough for a committee of
// size m. Zero book-keepers never satisfy any policy.
func (q Quorum) Satisfied(n, m int) bool {
	if n <= 0 {
		return false
	}
	if q == QuorumPoly {
		return 3*n >= 2*m
	}
	return 3*n > 2*m
}

// Threshold returns the smallest n that satisfies q for a committee of m.
func (q Quorum) Threshold(m int) int {
	n := 2 * m / 3
	for !q.Satisfied(n, m) {
		n++
	}
	return n
}

// Package bracket derives chat-facing views from raw Challonge bracket
// data: short round labels, the participant directory, and match records.
package bracket

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBracketSize is returned for brackets with fewer than two players.
var ErrInvalidBracketSize = errors.New("bracket needs at least two players")

// RoundName maps a signed Challonge round index to a short stage label.
// Positive rounds are the winners bracket, negative the losers bracket;
// the magnitude is the round depth. Examples for an 8-player bracket:
// WR1, WSF, WF, GF, LR1, LF.
func RoundName(round, playerCount int) (string, error) {
	if playerCount <= 1 {
		return "", ErrInvalidBracketSize
	}

	log2 := math.Log2(float64(playerCount))
	winnersRounds := int(math.Ceil(log2)) + 1
	losersRounds := int(math.Ceil(log2)) + int(math.Ceil(math.Log2(log2)))
	// A full power-of-two bracket has one losers round fewer than the
	// general formula suggests.
	if playerCount&(playerCount-1) == 0 {
		losersRounds--
	}

	prefix := "W"
	if round < 0 {
		prefix = "L"
	}

	var suffix string
	switch {
	case round == winnersRounds:
		return "GF", nil
	case round == winnersRounds-1 || round == -losersRounds:
		suffix = "F"
	case round == winnersRounds-2 || round == -losersRounds+1:
		suffix = "SF"
	case round == winnersRounds-3 || round == -losersRounds+2:
		suffix = "QF"
	default:
		suffix = fmt.Sprintf("R%d", abs(round))
	}
	return prefix + suffix, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package roulette

import (
	"github.com/Lavizord/roulette-server/internal/models"
)

var redPockets = [models.Pockets]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// IsZero reports whether result is one of the two zero pockets.
func IsZero(result uint8) bool {
	return result == 0 || result == models.DoubleZero
}

// IsRed reports whether result is a red pocket. Zeros are neither red nor black.
func IsRed(result uint8) bool {
	return int(result) < len(redPockets) && redPockets[result]
}

// Wins decides a recorded wager against the draw. The wager is assumed to have passed Validate.
func Wins(kind models.BetKind, numbers []uint8, param uint8, result uint8) bool {
	if result >= models.Pockets {
		return false
	}
	switch kind {
	case models.Straight:
		return len(numbers) == 1 && numbers[0] == result
	case models.Split, models.Street, models.Corner, models.FiveNumber, models.Line:
		for _, n := range numbers {
			if n == result {
				return true
			}
		}
		return false
	}

	// Outside bets: both zeros lose.
	if IsZero(result) {
		return false
	}
	switch kind {
	case models.Dozen:
		lo := (param-1)*12 + 1
		return param >= 1 && param <= 3 && result >= lo && result <= lo+11
	case models.Column:
		return (result-1)%3+1 == param
	case models.Low:
		return result <= 18
	case models.High:
		return result >= 19 && result <= 36
	case models.Red:
		return IsRed(result)
	case models.Black:
		return !IsRed(result)
	case models.Odd:
		return result%2 == 1
	case models.Even:
		return result%2 == 0
	default:
		return false
	}
}

// Package roulette holds the pure wager rules of a 38-pocket wheel.
package roulette

import (
	"errors"
	"fmt"

	"github.com/Lavizord/roulette-server/internal/models"
)

var (
	ErrUnknownKind   = errors.New("unknown bet kind")
	ErrNumbersLength = errors.New("wrong amount of numbers for bet kind")
	ErrNumberRange   = errors.New("number out of range")
	ErrParamRange    = errors.New("param must be 1, 2 or 3")
)

// numbersFor is the exact list length each inside bet takes.
var numbersFor = map[models.BetKind]int{
	models.Straight:   1,
	models.Split:      2,
	models.Street:     3,
	models.Corner:     4,
	models.FiveNumber: 5,
	models.Line:       6,
}

// RequiredNumbers returns how many numbers kind takes, and false for kinds without a list.
func RequiredNumbers(kind models.BetKind) (int, bool) {
	n, ok := numbersFor[kind]
	return n, ok
}

// Validate checks a wager before any funds move.
func Validate(kind models.BetKind, numbers []uint8, param uint8) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	if want, ok := numbersFor[kind]; ok {
		if len(numbers) != want {
			return fmt.Errorf("%w: %s takes %d, got %d", ErrNumbersLength, kind, want, len(numbers))
		}
		for _, n := range numbers {
			if n >= models.Pockets {
				return fmt.Errorf("%w: %d", ErrNumberRange, n)
			}
		}
		return nil
	}
	switch kind {
	case models.Dozen, models.Column:
		if param < 1 || param > 3 {
			return fmt.Errorf("%w: got %d for %s", ErrParamRange, param, kind)
		}
	}
	return nil
}

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BetKind is the shape of a wager. The zero value is not a valid kind.
type BetKind uint8

const (
	Straight BetKind = iota + 1
	Split
	Street
	Corner
	FiveNumber
	Line
	Dozen
	Column
	Low
	High
	Red
	Black
	Odd
	Even
)

var betKindNames = map[BetKind]string{
	Straight:   "straight",
	Split:      "split",
	Street:     "street",
	Corner:     "corner",
	FiveNumber: "five_number",
	Line:       "line",
	Dozen:      "dozen",
	Column:     "column",
	Low:        "low",
	High:       "high",
	Red:        "red",
	Black:      "black",
	Odd:        "odd",
	Even:       "even",
}

// AllBetKinds lists every kind in declaration order.
var AllBetKinds = []BetKind{
	Straight, Split, Street, Corner, FiveNumber, Line,
	Dozen, Column, Low, High, Red, Black, Odd, Even,
}

func (k BetKind) String() string {
	if name, ok := betKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("bet_kind(%d)", uint8(k))
}

func (k BetKind) Valid() bool {
	_, ok := betKindNames[k]
	return ok
}

// ParseBetKind accepts the snake_case names used on the wire.
func ParseBetKind(s string) (BetKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range betKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown bet kind %q", s)
}

func (k BetKind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", k)
	}
	return json.Marshal(k.String())
}

func (k *BetKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bet kind must be a string: %w", err)
	}
	parsed, err := ParseBetKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Numbers is the pocket list of an inside bet. It is a JSON array of integers on the wire
// rather than the base64 string encoding/json would use for a byte slice.
type Numbers []uint8

func (n Numbers) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	out := make([]int, len(n))
	for i, v := range n {
		out[i] = int(v)
	}
	return json.Marshal(out)
}

func (n *Numbers) UnmarshalJSON(data []byte) error {
	var in []int
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("numbers must be an array of integers: %w", err)
	}
	if in == nil {
		*n = nil
		return nil
	}
	out := make(Numbers, len(in))
	for i, v := range in {
		if v < 0 || v > 255 {
			return fmt.Errorf("number %d out of range", v)
		}
		out[i] = uint8(v)
	}
	*n = out
	return nil
}

// Bet is a single wager. It belongs to the round that was current when it was placed.
type Bet struct {
	ID           uint64    `json:"id"`
	RoundID      uint64    `json:"round_id"`
	Player       string    `json:"player"`
	Counterparty string    `json:"counterparty"`
	TokenID      string    `json:"token_id"`
	Kind         BetKind   `json:"kind"`
	Numbers      Numbers   `json:"numbers,omitempty"`
	Param        uint8     `json:"param,omitempty"`
	Processed    bool      `json:"processed"`
	Won          bool      `json:"won"`
	PlacedAt     time.Time `json:"placed_at"`
}

package randomness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"math/bits"
	"time"

	"github.com/pkg/errors"
)

// Seed is the user-provided input the oracle mixes into its output.
type Seed [32]byte

func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

func (s Seed) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Seed) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	raw, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("seed is not hex: %w", err)
	}
	if len(raw) != len(s) {
		return fmt.Errorf("seed must be %d bytes, got %d", len(s), len(raw))
	}
	copy(s[:], raw)
	return nil
}

// DeriveSeed hashes the engine identity, the round, the current time and fresh entropy read
// from src (crypto/rand when nil).
func DeriveSeed(engine string, roundID uint64, now time.Time, src io.Reader) (Seed, error) {
	if src == nil {
		src = rand.Reader
	}
	entropy := make([]byte, 32)
	if _, err := io.ReadFull(src, entropy); err != nil {
		return Seed{}, fmt.Errorf("read entropy: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(engine))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], roundID)
	binary.BigEndian.PutUint64(buf[8:], uint64(now.UnixNano()))
	h.Write(buf[:])
	h.Write(entropy)

	var seed Seed
	copy(seed[:], h.Sum(nil))
	return seed, nil
}

// FeeSchedule prices a request as a flat base plus gas at a fixed price.
type FeeSchedule struct {
	BaseFee  uint64
	GasPrice uint64
}

// ErrFeeOverflow is returned when a fee does not fit in a uint64.
var ErrFeeOverflow = errors.New("oracle fee overflows")

func (f FeeSchedule) Fee(gasBudget uint32) (uint64, error) {
	hi, gasCost := bits.Mul64(uint64(gasBudget), f.GasPrice)
	if hi != 0 {
		return 0, errors.Wrapf(ErrFeeOverflow, "gas %d at price %d", gasBudget, f.GasPrice)
	}
	fee, carry := bits.Add64(f.BaseFee, gasCost, 0)
	if carry != 0 {
		return 0, errors.Wrapf(ErrFeeOverflow, "base %d plus gas cost %d", f.BaseFee, gasCost)
	}
	return fee, nil
}

// HMACValue is the value the development oracle delivers: HMAC-SHA256(secret, seed|requestID)
// read as a big-endian 256-bit integer.
func HMACValue(secret []byte, seed Seed, requestID string) *big.Int {
	mac := hmac.New(sha256.New, secret)
	mac.Write(seed[:])
	mac.Write([]byte("|" + requestID))
	return new(big.Int).SetBytes(mac.Sum(nil))
}

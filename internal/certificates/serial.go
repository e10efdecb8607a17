package certificates

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
)

// SerialNumberGenerator produces random certificate serial numbers and refuses to hand
// out a value it already produced during the lifetime of the process. Uniqueness is not
// persisted across runs.
type SerialNumberGenerator struct {
	mutex            sync.Mutex
	randomnessSource io.Reader
	upperBound       *big.Int
	maximumAttempts  int
	issued           map[string]struct{}
}

// NewSerialNumberGenerator constructs a SerialNumberGenerator reading from randomnessSource.
func NewSerialNumberGenerator(randomnessSource io.Reader) *SerialNumberGenerator {
	return &SerialNumberGenerator{
		randomnessSource: randomnessSource,
		upperBound:       new(big.Int).Lsh(big.NewInt(1), defaultCertificateSerialNumberUpperBitLen),
		maximumAttempts:  defaultMaximumSerialNumberGenerationAttempts,
		issued:           map[string]struct{}{},
	}
}

// Next returns a positive serial number not previously returned by this generator.
func (generator *SerialNumberGenerator) Next() (*big.Int, error) {
	generator.mutex.Lock()
	defer generator.mutex.Unlock()

	for attempt := 0; attempt < generator.maximumAttempts; attempt++ {
		serialNumber, err := rand.Int(generator.randomnessSource, generator.upperBound)
		if err != nil {
			return nil, fmt.Errorf("generate serial number: %w", err)
		}
		if serialNumber.Sign() == 0 {
			continue
		}
		key := serialNumber.String()
		if _, seen := generator.issued[key]; seen {
			continue
		}
		generator.issued[key] = struct{}{}
		return serialNumber, nil
	}
	return nil, fmt.Errorf("generate serial number: no unused value after %d attempts", generator.maximumAttempts)
}

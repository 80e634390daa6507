package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"

	"golang.org/x/crypto/blake2b"
)

const (
	// secretSeedBytes is the entropy of a server seed. Hex encoded it is 64
	// characters, which is exactly blake2b's maximum key size.
	secretSeedBytes = 32

	// winThreshold splits the 32 bit roll space in half: rolls below it win.
	winThreshold uint32 = 1 << 31
)

const verificationProcedure = "1. BLAKE2b-256(secret_seed) must equal commitment_hash. " +
	"2. BLAKE2b-256 keyed with secret_seed over client_seed must equal combined_hash. " +
	"3. The first 4 bytes of combined_hash read as a big-endian uint32 win when below 2147483648."

// SeedSource produces server secret seeds.
type SeedSource func() (string, error)

// GenerateSecretSeed returns 32 random bytes, hex encoded.
func GenerateSecretSeed() (string, error) {
	buf := make([]byte, secretSeedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CommitmentHash is the public one-way commitment to a secret seed.
func CommitmentHash(secretSeed string) string {
	sum := blake2b.Sum256([]byte(secretSeed))
	return hex.EncodeToString(sum[:])
}

// CombinedHash mixes the server secret with the client seed.
func CombinedHash(secretSeed, clientSeed string) (string, error) {
	h, err := blake2b.New256([]byte(secretSeed))
	if err != nil {
		return "", fmt.Errorf("failed to key hash: %w", err)
	}
	h.Write([]byte(clientSeed))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Roll reads the leading 32 bits of a combined hash.
func Roll(combinedHash string) (uint32, error) {
	raw, err := hex.DecodeString(combinedHash)
	if err != nil {
		return 0, fmt.Errorf("combined hash is not hex: %w", err)
	}
	if len(raw) < 4 {
		return 0, fmt.Errorf("combined hash too short: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint32(raw[:4]), nil
}

// IsWin applies the 50/50 threshold rule.
func IsWin(roll uint32) bool {
	return roll < winThreshold
}

// VerifyWager recomputes every check a third party can perform on a settled wager.
func VerifyWager(record *entities.WagerRecord) *interfaces.WagerVerification {
	v := &interfaces.WagerVerification{
		WagerID:        record.ID,
		Wallet:         record.Wallet,
		SecretSeed:     record.SecretSeed,
		CommitmentHash: record.CommitmentHash,
		ClientSeed:     record.ClientSeed,
		CombinedHash:   record.CombinedHash,
		WinThreshold:   winThreshold,
		Won:            record.Won,
		Procedure:      verificationProcedure,
	}

	v.HashValid = constantTimeEqual(CommitmentHash(record.SecretSeed), record.CommitmentHash)

	if combined, err := CombinedHash(record.SecretSeed, record.ClientSeed); err == nil {
		v.CombinedValid = constantTimeEqual(combined, record.CombinedHash)
	}

	if roll, err := Roll(record.CombinedHash); err == nil {
		v.Roll = roll
		v.OutcomeValid = IsWin(roll) == record.Won
	}

	return v
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/mwfields/authcore/internal"
	"github.com/mwfields/authcore/internal/ctcompare"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// ErrMalformedRecord is returned when a stored credential record cannot be
// parsed as a PHC string produced by this package.
var ErrMalformedRecord = errors.New("malformed credential record")

// Config holds the argon2id cost parameters targeted for new hashes.
// Memory is in KiB. Values are fixed at construction; tune them so a single
// verification lands in the 0.5–1s range on the expected hardware.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Outcome is the result of verifying a secret against a stored record.
// NeedsRehash is set when the record was produced with weaker parameters
// than the live configuration, signaling an opportunistic upgrade.
type Outcome struct {
	Matched     bool
	NeedsRehash bool
}

// Argon2 hashes and verifies secrets against PHC-encoded records.
type Argon2 struct {
	config Config
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

// NewArgon2 validates cfg and returns a hasher bound to it.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg}, nil
}

// Hash derives a fresh CSPRNG salt, runs argon2id over secret with the
// configured parameters, and returns the self-describing record string.
func (a *Argon2) Hash(secret string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret must not be empty")
	}

	salt, err := internal.NewSalt(int(a.config.SaltLength))
	if err != nil {
		return "", err
	}

	digest := argon2.IDKey(
		[]byte(secret),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(digest),
	), nil
}

// Verify recomputes the digest for secret using the parameters stored in
// record and compares the result in constant time. The comparison scans the
// full digest regardless of where a mismatch occurs; only the fixed,
// per-algorithm digest length can short-circuit.
func (a *Argon2) Verify(secret string, record string) (Outcome, error) {
	parsed, err := parsePHC(record)
	if err != nil {
		return Outcome{}, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.digest)),
	)

	return Outcome{
		Matched:     ctcompare.Equal(computed, parsed.digest),
		NeedsRehash: a.belowTarget(parsed),
	}, nil
}

// NeedsRehash reports whether record was produced with parameters below the
// live configuration, without verifying any secret.
func (a *Argon2) NeedsRehash(record string) (bool, error) {
	parsed, err := parsePHC(record)
	if err != nil {
		return false, err
	}
	return a.belowTarget(parsed), nil
}

func (a *Argon2) belowTarget(parsed *parsedPHC) bool {
	if a.config.Memory > parsed.memory {
		return true
	}
	if a.config.Time > parsed.time {
		return true
	}
	if a.config.Parallelism > parsed.parallelism {
		return true
	}
	if a.config.KeyLength != uint32(len(parsed.digest)) {
		return true
	}
	return false
}

func parsePHC(record string) (*parsedPHC, error) {
	parts := strings.Split(record, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedRecord
	}

	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm", ErrMalformedRecord)
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedRecord)
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version", ErrMalformedRecord)
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid salt encoding", ErrMalformedRecord)
	}
	if len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt too short", ErrMalformedRecord)
	}

	digest, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid digest encoding", ErrMalformedRecord)
	}
	if len(digest) < int(minKeyLength) {
		return nil, fmt.Errorf("%w: digest too short", ErrMalformedRecord)
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		digest:      digest,
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, fmt.Errorf("%w: invalid parameter format", ErrMalformedRecord)
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: invalid parameter entry", ErrMalformedRecord)
		}

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, fmt.Errorf("%w: invalid memory parameter", ErrMalformedRecord)
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, fmt.Errorf("%w: invalid time parameter", ErrMalformedRecord)
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, fmt.Errorf("%w: invalid parallelism parameter", ErrMalformedRecord)
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, fmt.Errorf("%w: unsupported parameter", ErrMalformedRecord)
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, fmt.Errorf("%w: missing parameters", ErrMalformedRecord)
	}

	return &params, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KiB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}

	return nil
}

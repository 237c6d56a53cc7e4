package coderegistry

import (
	"cmp"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/blake2b"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
)

const fingerprintLen = 16

// Registry owns the redeem code catalog and its one time consumption
// Callers holding an account lock may call it, never the other way around
type Registry struct {
	mu     sync.Mutex
	active []slot          // insertion order
	index  map[string]int  // normalized code -> position in active
	used   map[string]slot // kept so a consumption can be undone
	seq    uint64
}

type slot struct {
	models.RedeemCode
	seq uint64 // insertion order, survives consume and restore
}

// New validates the seed catalog
func New(seed []models.RedeemCode) (*Registry, error) {
	r := &Registry{
		index: make(map[string]int, len(seed)),
		used:  make(map[string]slot),
	}

	for _, c := range seed {
		if err := r.add(c.Code, c.Value); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Normalize trims, drops inner whitespace and upper cases the code
func Normalize(code string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code))
}

// Fingerprint identifies a code in logs and events without revealing it
func Fingerprint(code string) string {
	sum := blake2b.Sum256([]byte(Normalize(code)))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// Redeem consumes code and returns its value
func (r *Registry) Redeem(code string) (models.Amount, error) {
	norm := Normalize(code)
	if norm == "" {
		return 0, apperrors.ErrInvalidCode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.used[norm]; ok {
		return 0, apperrors.ErrCodeAlreadyUsed
	}

	pos, ok := r.index[norm]
	if !ok {
		return 0, apperrors.ErrInvalidCode
	}

	value := r.active[pos].Value
	r.consume(pos)
	return value, nil
}

// FindByValue returns the first active code worth amount
func (r *Registry) FindByValue(amount models.Amount) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := r.findByValue(amount)
	if pos < 0 {
		return "", false
	}
	return r.active[pos].Code, true
}

// TakeByValue finds and consumes the first active code worth amount
func (r *Registry) TakeByValue(amount models.Amount) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos := r.findByValue(amount)
	if pos < 0 {
		return "", apperrors.ErrNoCodeAvailable
	}

	code := r.active[pos].Code
	r.consume(pos)
	return code, nil
}

// Restore undoes the consumption of code, returning it to its catalog position
// It is meant for a caller whose account update failed after Redeem or TakeByValue
func (r *Registry) Restore(code string) error {
	norm := Normalize(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.used[norm]
	if !ok {
		return fmt.Errorf("code %s was not consumed: %w", Fingerprint(norm), apperrors.ErrInvalidCode)
	}

	pos, _ := slices.BinarySearchFunc(r.active, s.seq, func(c slot, seq uint64) int {
		return cmp.Compare(c.seq, seq)
	})
	r.active = slices.Insert(r.active, pos, s)
	r.reindex(pos)
	delete(r.used, norm)
	return nil
}

// Add puts a new code at the end of the catalog
// Codes that are active or were ever used are rejected
func (r *Registry) Add(code string, value models.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.add(code, value)
}

// Stats returns count of active and used codes
func (r *Registry) Stats() (active int, used int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.active), len(r.used)
}

// Catalog lists active codes by fingerprint
func (r *Registry) Catalog() []models.CatalogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]models.CatalogEntry, 0, len(r.active))
	for _, c := range r.active {
		entries = append(entries, models.CatalogEntry{
			Fingerprint: Fingerprint(c.Code),
			Value:       c.Value,
		})
	}
	return entries
}

func (r *Registry) add(code string, value models.Amount) error {
	norm := Normalize(code)
	if norm == "" {
		return fmt.Errorf("empty code: %w", apperrors.ErrInvalidCode)
	}
	if value <= 0 {
		return fmt.Errorf("code %s value %s: %w", Fingerprint(norm), value, apperrors.ErrInvalidAmount)
	}
	if _, ok := r.index[norm]; ok {
		return fmt.Errorf("code %s is duplicated: %w", Fingerprint(norm), apperrors.ErrInvalidCode)
	}
	if _, ok := r.used[norm]; ok {
		return fmt.Errorf("code %s: %w", Fingerprint(norm), apperrors.ErrCodeAlreadyUsed)
	}

	r.index[norm] = len(r.active)
	r.active = append(r.active, slot{
		RedeemCode: models.RedeemCode{Code: norm, Value: value},
		seq:        r.seq,
	})
	r.seq++
	return nil
}

func (r *Registry) findByValue(amount models.Amount) int {
	for i, c := range r.active {
		if c.Value == amount {
			return i
		}
	}
	return -1
}

// consume moves the code at pos to the used set keeping catalog order
func (r *Registry) consume(pos int) {
	s := r.active[pos]

	r.active = slices.Delete(r.active, pos, pos+1)
	delete(r.index, s.Code)
	r.reindex(pos)

	r.used[s.Code] = s
}

func (r *Registry) reindex(from int) {
	for i := from; i < len(r.active); i++ {
		r.index[r.active[i].Code] = i
	}
}

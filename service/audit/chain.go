package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/viant/fluxgate/model"
)

// Entry is a hash chained decision. Hash covers the canonical JSON form of
// the decision together with the previous entry hash, so any edit or
// reordering of earlier entries breaks every later hash.
type Entry struct {
	Sequence int64           `json:"sequence"`
	Decision *model.Decision `json:"decision"`
	PrevHash string          `json:"prevHash"`
	Hash     string          `json:"hash"`
}

// Hash computes the chain hash of decision appended after prevHash.
func Hash(prevHash string, decision *model.Decision) (string, error) {
	data, err := json.Marshal(struct {
		PrevHash string          `json:"prevHash"`
		Decision *model.Decision `json:"decision"`
	}{prevHash, decision})
	if err != nil {
		return "", fmt.Errorf("failed to encode decision %s: %w", decision.ID, err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize decision %s: %w", decision.ID, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Chain links the next decision to the tail of entries.
func Chain(entries []*Entry, decision *model.Decision) (*Entry, error) {
	prev := ""
	var sequence int64 = 1
	if n := len(entries); n > 0 {
		prev = entries[n-1].Hash
		sequence = entries[n-1].Sequence + 1
	}
	hash, err := Hash(prev, decision)
	if err != nil {
		return nil, err
	}
	return &Entry{Sequence: sequence, Decision: decision, PrevHash: prev, Hash: hash}, nil
}

// Verify recomputes every hash and reports the first broken link.
func Verify(entries []*Entry) error {
	prev := ""
	for i, entry := range entries {
		if entry.PrevHash != prev {
			return fmt.Errorf("audit chain broken at entry %d: previous hash mismatch", i+1)
		}
		hash, err := Hash(prev, entry.Decision)
		if err != nil {
			return err
		}
		if hash != entry.Hash {
			return fmt.Errorf("audit chain broken at entry %d: decision %s was modified", i+1, entry.Decision.ID)
		}
		prev = entry.Hash
	}
	return nil
}

package registry

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"

	"github.com/yungbote/synccore-backend/internal/domain"
)

const sealDigestSize = 16

// computeSeal fingerprints the registry content in order. It hashes the
// canonical JSON of the ordered entries (encoding/json emits map keys
// sorted, so equal content in equal order always serializes the same),
// so any change of content or order produces a new seal. Not a
// security boundary; a cache validator.
func computeSeal(entries []domain.Crystal) (string, error) {
	if entries == nil {
		entries = []domain.Crystal{}
	}
	blob, err := json.Marshal(struct {
		Spec     string           `json:"spec"`
		Registry []domain.Crystal `json:"registry"`
	}{Spec: domain.SpecVersion, Registry: entries})
	if err != nil {
		return "", err
	}
	h, err := blake2b.New(sealDigestSize, nil)
	if err != nil {
		return "", err
	}
	_, _ = h.Write(blob)
	return hex.EncodeToString(h.Sum(nil)), nil
}

package planner

import (
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// SeedSource produces the single generation seed shared by every item in a
// campaign. One seed per campaign is what keeps the generated subject and
// garment recognizable across all shots.
type SeedSource interface {
	CampaignSeed(identityKey string) int64
}

// StableSeedSource hashes a non-empty identity key so re-planning the same
// campaign yields the same seed; without a key it draws one random value per
// campaign.
type StableSeedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewStableSeedSource() *StableSeedSource {
	return &StableSeedSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *StableSeedSource) CampaignSeed(identityKey string) int64 {
	identityKey = strings.TrimSpace(identityKey)
	if identityKey != "" {
		h := fnv.New64a()
		_, _ = h.Write([]byte(identityKey))
		seed := int64(h.Sum64() & 0x7fffffffffffffff)
		return seed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63()
}

var _ SeedSource = (*StableSeedSource)(nil)

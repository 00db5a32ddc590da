package persistence

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tcriess/terrace-buddy/globals"
)

const defaultMembershipCacheTTL = 30 * time.Second

// MembershipChecker answers community membership questions for the live path. Positive and negative answers
// are cached for at most ttl, so changes written by other processes are picked up after that. Changes made
// through the checker invalidate the entry right away.
type MembershipChecker struct {
	persister Persister
	cache     *expirable.LRU[string, bool]

	// bumped by every invalidation, an answer read before an invalidation is not cached
	generation uint64
	sync.Mutex
}

func NewMembershipChecker(persister Persister, size int, ttl time.Duration) (*MembershipChecker, error) {
	if size <= 0 {
		size = 1
	}
	if ttl <= 0 {
		ttl = defaultMembershipCacheTTL
	}
	return &MembershipChecker{
		persister: persister,
		cache:     expirable.NewLRU[string, bool](size, nil, ttl),
	}, nil
}

func membershipCacheKey(communityId, userId string) string {
	return communityId + "\x00" + userId
}

func (m *MembershipChecker) IsMember(communityId, userId string) (bool, error) {
	key := membershipCacheKey(communityId, userId)
	if isMember, ok := m.cache.Get(key); ok {
		return isMember, nil
	}
	m.Lock()
	generation := m.generation
	m.Unlock()
	isMember, err := m.persister.IsMember(communityId, userId)
	if err != nil {
		globals.AppLogger.Error("could not check membership", "community", communityId, "user", userId, "error", err)
		return false, err
	}
	m.Lock()
	if m.generation == generation {
		m.cache.Add(key, isMember)
	}
	m.Unlock()
	return isMember, nil
}

// Invalidate drops the cached answer for the pair.
func (m *MembershipChecker) Invalidate(communityId, userId string) {
	m.Lock()
	defer m.Unlock()
	m.generation++
	m.cache.Remove(membershipCacheKey(communityId, userId))
}

// AddMember stores the membership and invalidates the cache entry.
func (m *MembershipChecker) AddMember(communityId, userId string) error {
	defer m.Invalidate(communityId, userId)
	return m.persister.AddMember(communityId, userId)
}

// RemoveMember deletes the membership and invalidates the cache entry.
func (m *MembershipChecker) RemoveMember(communityId, userId string) error {
	defer m.Invalidate(communityId, userId)
	return m.persister.RemoveMember(communityId, userId)
}

package repo

import (
	"fmt"
	"slices"
)

// Shard — один шард хранилища триггеров и диапазон его тенантов.
type Shard struct {
	Name string

	// MinTenant и MaxTenant — включительный диапазон тенантов.
	// MaxTenant == 0 означает «без верхней границы».
	MinTenant int
	MaxTenant int

	// Legacy — шард без поддержки триггеров.
	Legacy bool

	Store *TriggerRepo
}

// Owns проверяет, обслуживает ли шард тенанта.
func (s *Shard) Owns(tenantID int) bool {
	if tenantID < s.MinTenant {
		return false
	}
	return s.MaxTenant == 0 || tenantID <= s.MaxTenant
}

func (s *Shard) overlaps(other *Shard) bool {
	hi := func(sh *Shard) int {
		if sh.MaxTenant == 0 {
			return int(^uint(0) >> 1)
		}
		return sh.MaxTenant
	}
	return s.MinTenant <= hi(other) && other.MinTenant <= hi(s)
}

// Cluster маршрутизирует тенантов по шардам.
type Cluster struct {
	shards []*Shard
}

// NewCluster создаёт кластер. Диапазоны тенантов не должны пересекаться.
func NewCluster(shards ...*Shard) (*Cluster, error) {
	sorted := slices.Clone(shards)
	slices.SortFunc(sorted, func(a, b *Shard) int { return a.MinTenant - b.MinTenant })

	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].overlaps(sorted[i]) {
			return nil, fmt.Errorf("shards %q and %q have overlapping tenant ranges",
				sorted[i-1].Name, sorted[i].Name)
		}
	}
	return &Cluster{shards: sorted}, nil
}

// ForTenant возвращает хранилище шарда, обслуживающего тенанта.
func (c *Cluster) ForTenant(tenantID int) (*TriggerRepo, error) {
	for _, s := range c.shards {
		if !s.Owns(tenantID) {
			continue
		}
		if s.Legacy || s.Store == nil {
			return nil, fmt.Errorf("tenant %d on shard %q: %w", tenantID, s.Name, ErrUnsupportedStorage)
		}
		return s.Store, nil
	}
	return nil, fmt.Errorf("tenant %d: %w", tenantID, ErrNoShard)
}

// Shards возвращает шарды в порядке диапазонов.
func (c *Cluster) Shards() []*Shard {
	return slices.Clone(c.shards)
}

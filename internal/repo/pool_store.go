package repo

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wgfleet/internal/models"
)

// MaxPoolSize ограничивает размер подсети, которую можно засеять в пул.
const MaxPoolSize = 1 << 16

const claimAttempts = 32

// PoolStore выделяет адреса. Методы работают на том хэндле, которым создан
// стор: внутри Registry.Transaction резерв адреса коммитится вместе с записью пира.
type PoolStore struct{ db *gorm.DB }

func NewPoolStore(d *gorm.DB) *PoolStore { return &PoolStore{db: d} }

type PoolStats struct {
	Subnet   string `json:"subnet"`
	Total    int64  `json:"total"`
	Assigned int64  `json:"assigned"`
}

// Allocate резервирует адрес подсети. Без requested берётся первая свободная запись.
func (s *PoolStore) Allocate(ctx context.Context, subnet, requested string) (string, error) {
	if strings.TrimSpace(requested) != "" {
		return s.reserve(ctx, subnet, requested)
	}
	for i := 0; i < claimAttempts; i++ {
		var e models.AddressPoolEntry
		err := s.db.WithContext(ctx).
			Where("subnet = ? AND assigned = ?", subnet, false).
			Order("id asc").
			First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: subnet %s", models.ErrPoolExhausted, subnet)
		}
		if err != nil {
			return "", err
		}
		ok, err := s.claim(ctx, e.ID)
		if err != nil {
			return "", err
		}
		if ok {
			return e.Address, nil
		}
		// запись успел забрать конкурент — берём следующую
	}
	return "", fmt.Errorf("%w: could not claim an address in %s", models.ErrConstraintViolation, subnet)
}

func (s *PoolStore) reserve(ctx context.Context, subnet, requested string) (string, error) {
	addr, err := ParseHostAddr(requested)
	if err != nil {
		return "", err
	}
	var e models.AddressPoolEntry
	err = s.db.WithContext(ctx).Where("address = ?", addr.String()).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && e.Subnet != subnet) {
		return "", fmt.Errorf("%w: address %s is not in pool %s", models.ErrInvalidInput, addr, subnet)
	}
	if err != nil {
		return "", err
	}
	ok, err := s.claim(ctx, e.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: address %s already assigned", models.ErrConstraintViolation, addr)
	}
	return e.Address, nil
}

func (s *PoolStore) claim(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.AddressPoolEntry{}).
		Where("id = ? AND assigned = ?", id, false).
		Update("assigned", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release снимает флаг. Адрес вне пула — не ошибка.
func (s *PoolStore) Release(ctx context.Context, address string) error {
	return s.db.WithContext(ctx).Model(&models.AddressPoolEntry{}).
		Where("address = ?", address).
		Update("assigned", false).Error
}

// IsAssigned нужен проверкам и сверке.
func (s *PoolStore) IsAssigned(ctx context.Context, address string) (bool, error) {
	var e models.AddressPoolEntry
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return e.Assigned, err
}

// Seed заполняет пул хостовыми адресами префикса. Повторный вызов ничего не дублирует.
func (s *PoolStore) Seed(ctx context.Context, cidr string, exclude ...netip.Addr) (int, error) {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	p = p.Masked()
	hosts, err := HostAddrs(p, exclude...)
	if err != nil {
		return 0, err
	}
	entries := make([]models.AddressPoolEntry, 0, len(hosts))
	for _, a := range hosts {
		entries = append(entries, models.AddressPoolEntry{Subnet: p.String(), Address: a.String()})
	}
	if len(entries) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "address"}}, DoNothing: true}).
		CreateInBatches(&entries, 500)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// Repair выставляет флаги по факту: assigned только у адресов из held.
func (s *PoolStore) Repair(ctx context.Context, held map[string]bool) (int, error) {
	var entries []models.AddressPoolEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return 0, err
	}
	fixed := 0
	for _, e := range entries {
		want := held[e.Address]
		if e.Assigned == want {
			continue
		}
		if err := s.db.WithContext(ctx).Model(&models.AddressPoolEntry{}).
			Where("id = ?", e.ID).Update("assigned", want).Error; err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

func (s *PoolStore) Stats(ctx context.Context, subnet string) (PoolStats, error) {
	st := PoolStats{Subnet: subnet}
	q := s.db.WithContext(ctx).Model(&models.AddressPoolEntry{}).Where("subnet = ?", subnet)
	if err := q.Count(&st.Total).Error; err != nil {
		return st, err
	}
	err := s.db.WithContext(ctx).Model(&models.AddressPoolEntry{}).
		Where("subnet = ? AND assigned = ?", subnet, true).
		Count(&st.Assigned).Error
	return st, err
}

// HostAddrs перечисляет адреса префикса. Для IPv4 короче /31 пропускаются
// адрес сети и широковещательный.
func HostAddrs(p netip.Prefix, exclude ...netip.Addr) ([]netip.Addr, error) {
	hostBits := p.Addr().BitLen() - p.Bits()
	if hostBits > 16 {
		return nil, fmt.Errorf("%w: prefix %s exceeds %d addresses", models.ErrInvalidInput, p, MaxPoolSize)
	}
	skip := make(map[netip.Addr]bool, len(exclude)+2)
	for _, a := range exclude {
		skip[a.Unmap()] = true
	}
	r := netipx.RangeOfPrefix(p)
	if p.Addr().Is4() && p.Bits() < 31 {
		skip[r.From()] = true
		skip[r.To()] = true
	}
	out := make([]netip.Addr, 0, 1<<hostBits)
	for a := r.From(); ; a = a.Next() {
		if !skip[a] {
			out = append(out, a)
		}
		if a == r.To() {
			break
		}
	}
	return out, nil
}

// ParseHostAddr принимает "10.0.0.7" и "10.0.0.7/32".
func ParseHostAddr(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		p, err := netip.ParsePrefix(s)
		if err != nil || !p.IsSingleIP() {
			return netip.Addr{}, fmt.Errorf("%w: %q is not a single address", models.ErrInvalidInput, s)
		}
		return p.Addr(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return a.Unmap(), nil
}

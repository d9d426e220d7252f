package models

import (
	"fmt"
	"net/netip"
	"time"
)

// ServerIdentity хранит единственную запись о локальном интерфейсе.
type ServerIdentity struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	InterfaceName string `gorm:"size:32;not null"`
	PublicKey     string `gorm:"size:64;not null"`
	ServerIPs     string `gorm:"size:64;not null"` // "10.0.0.1/24"
}

// Prefix разбирает ServerIPs.
func (s *ServerIdentity) Prefix() (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s.ServerIPs)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("server_ips %q: %w", s.ServerIPs, err)
	}
	return p, nil
}

// Subnet возвращает маскированную подсеть сервера, ключ пула адресов.
func (s *ServerIdentity) Subnet() (string, error) {
	p, err := s.Prefix()
	if err != nil {
		return "", err
	}
	return p.Masked().String(), nil
}

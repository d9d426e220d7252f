package models

import (
	"time"
)

// Peer описывает зарегистрированного клиента интерфейса.
// PublicKey, PrivateKey и AssignedIP уникальны по всему реестру.
type Peer struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `gorm:"size:255" json:"created_by"`
	UpdatedBy string    `gorm:"size:255" json:"updated_by"`

	UserID   string          `gorm:"index;size:64;not null" json:"user_id"`
	ServerID uint            `gorm:"index;not null" json:"server_id"`
	Server   *ServerIdentity `gorm:"foreignKey:ServerID" json:"-"`

	Name       string `gorm:"index;size:255" json:"peer_name"`
	PublicKey  string `gorm:"uniqueIndex;size:64;not null" json:"public_key"`
	PrivateKey string `gorm:"uniqueIndex;size:64;not null" json:"private_key"`
	AssignedIP string `gorm:"uniqueIndex;size:64;not null" json:"assigned_ip"`
}

// AddressPoolEntry хранит адрес из пула подсети. Assigned=true, пока адрес держит ровно один пир.
type AddressPoolEntry struct {
	ID       uint   `gorm:"primaryKey"`
	Subnet   string `gorm:"index;size:64;not null"`
	Address  string `gorm:"uniqueIndex;size:64;not null"`
	Assigned bool   `gorm:"index;not null;default:false"`
}

func (AddressPoolEntry) TableName() string { return "address_pool" }

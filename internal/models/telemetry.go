package models

import (
	"encoding/json"
	"strconv"
)

const (
	HandshakeNever  = "never"
	EndpointUnknown = "unknown"
)

// Handshake — unix-время последнего рукопожатия либо "never".
type Handshake struct {
	Unix  int64
	Valid bool
}

func HandshakeAt(unix int64) Handshake { return Handshake{Unix: unix, Valid: true} }

func (h Handshake) String() string {
	if !h.Valid {
		return HandshakeNever
	}
	return strconv.FormatInt(h.Unix, 10)
}

func (h Handshake) MarshalJSON() ([]byte, error) {
	if !h.Valid {
		return json.Marshal(HandshakeNever)
	}
	return json.Marshal(h.Unix)
}

func (h *Handshake) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*h = HandshakeAt(n)
		return nil
	}
	*h = Handshake{}
	return nil
}

// TransferSnapshot не хранится, считается заново на каждый запрос.
type TransferSnapshot struct {
	RX              int64     `json:"rx"`
	TX              int64     `json:"tx"`
	LatestHandshake Handshake `json:"latest_handshake"`
	Endpoint        string    `json:"endpoint"`
}

// DefaultTransfer возвращает значения для пира, которого нет в выводе интерфейса.
func DefaultTransfer() TransferSnapshot {
	return TransferSnapshot{Endpoint: EndpointUnknown}
}

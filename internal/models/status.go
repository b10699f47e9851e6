package models

import (
	"encoding/json"
	"fmt"
)

// DeliveryStatus is ordered: sent < delivered < read. The numeric value is
// what the store persists, which lets "never move backwards" be a single
// comparison in SQL.
type DeliveryStatus int8

const (
	StatusSent DeliveryStatus = iota
	StatusDelivered
	StatusRead
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	}
	return fmt.Sprintf("DeliveryStatus(%d)", int8(s))
}

func (s DeliveryStatus) Valid() bool {
	return s >= StatusSent && s <= StatusRead
}

// Advance applies next to s. Statuses only move forward; an earlier, equal
// or invalid next leaves s unchanged and reports false.
func (s DeliveryStatus) Advance(next DeliveryStatus) (DeliveryStatus, bool) {
	if !next.Valid() || next <= s {
		return s, false
	}
	return next, true
}

func ParseDeliveryStatus(v string) (DeliveryStatus, error) {
	switch v {
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	case "read":
		return StatusRead, nil
	}
	return 0, fmt.Errorf("unknown delivery status %q", v)
}

func (s DeliveryStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal %v", s)
	}
	return json.Marshal(s.String())
}

func (s *DeliveryStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseDeliveryStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

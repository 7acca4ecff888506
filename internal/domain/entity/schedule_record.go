package entity

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleRecord is a backfill definition owned by the Job Registry. At most
// one record may exist per (token_lower, network_lower) pair.
type ScheduleRecord struct {
	ID        string
	Token     string
	Network   Network
	Interval  string
	Enabled   bool
	CreatedAt time.Time
	LastRun   *time.Time
	NextRun   *time.Time
}

// NewScheduleRecord validates and constructs a ScheduleRecord. ID is
// supplied by the caller (the Registry mints it) so this constructor stays
// a pure validator, matching the rest of the package.
func NewScheduleRecord(id, token string, network Network, interval string, enabled bool) (*ScheduleRecord, error) {
	s := &ScheduleRecord{
		ID:        id,
		Token:     strings.ToUpper(token),
		Network:   network,
		Interval:  interval,
		Enabled:   enabled,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ScheduleRecord) validate() error {
	if s.ID == "" {
		return fmt.Errorf("id must not be empty")
	}
	if s.Token == "" {
		return fmt.Errorf("token must not be empty")
	}
	if !validNetworks[s.Network] {
		return fmt.Errorf("unsupported network %q", s.Network)
	}
	return nil
}

// Key is the case-insensitive identity used for the AlreadyExists check.
func (s *ScheduleRecord) Key() string {
	return strings.ToLower(s.Token) + ":" + strings.ToLower(string(s.Network))
}

// ScheduleKey builds the same identity from raw inputs, for lookups before a
// ScheduleRecord exists.
func ScheduleKey(token string, network Network) string {
	return strings.ToLower(token) + ":" + strings.ToLower(string(network))
}

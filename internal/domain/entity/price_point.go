package entity

import (
	"fmt"
	"strings"
	"time"
)

// PricePoint is the atomic persisted record: a USD price for a token on a
// network at a specific second. (token, network, unix_ts) is unique.
type PricePoint struct {
	Token      string
	Network    Network
	UnixTS     int64
	ISODate    string
	Price      float64
	Source     Source
	Confidence float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewPricePoint validates and constructs a PricePoint. Token is uppercased,
// ISODate is derived from UnixTS so the two can never drift.
func NewPricePoint(token string, network Network, unixTS int64, price float64, source Source, confidence float64) (*PricePoint, error) {
	now := time.Now().UTC()
	p := &PricePoint{
		Token:      strings.ToUpper(token),
		Network:    network,
		UnixTS:     unixTS,
		ISODate:    time.Unix(unixTS, 0).UTC().Format(time.RFC3339),
		Price:      price,
		Source:     source,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PricePoint) validate() error {
	if p.Token == "" {
		return fmt.Errorf("token must not be empty")
	}
	if !validNetworks[p.Network] {
		return fmt.Errorf("unsupported network %q", p.Network)
	}
	if p.Price < 0 {
		return fmt.Errorf("price must be non-negative, got %f", p.Price)
	}
	if p.Source != SourceUpstream && p.Source != SourceInterpolated {
		return fmt.Errorf("source must be upstream or interpolated, got %q", p.Source)
	}
	if p.Source == SourceUpstream && p.Confidence != 1.0 {
		return fmt.Errorf("upstream points must have confidence 1.0, got %f", p.Confidence)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", p.Confidence)
	}
	return nil
}

// Fingerprint returns the canonical cache key for this point's coordinates.
func (p *PricePoint) Fingerprint() string {
	return Fingerprint(p.Token, p.Network, p.UnixTS)
}

// Fingerprint builds the canonical cache key price:{token_lower}:{network_lower}:{iso_timestamp}
// shared by every caller that needs to address a point query.
func Fingerprint(token string, network Network, unixTS int64) string {
	iso := time.Unix(unixTS, 0).UTC().Format(time.RFC3339)
	return fmt.Sprintf("price:%s:%s:%s", strings.ToLower(token), strings.ToLower(string(network)), iso)
}

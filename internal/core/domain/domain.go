package domain

import (
	"fmt"
	"strings"
)

// Domain is a category of remote entity with its own endpoint and cache tables.
type Domain string

const (
	DomainCharacter Domain = "character"
	DomainEpisode   Domain = "episode"
	DomainLocation  Domain = "location"
)

// AllDomains lists every domain in a stable order.
func AllDomains() []Domain {
	return []Domain{DomainCharacter, DomainEpisode, DomainLocation}
}

// ParseDomain accepts the singular or plural form ("character", "characters").
func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "character", "characters":
		return DomainCharacter, nil
	case "episode", "episodes":
		return DomainEpisode, nil
	case "location", "locations":
		return DomainLocation, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}

// Plural returns the collection name used by the HTTP API.
func (d Domain) Plural() string {
	return string(d) + "s"
}

// FilterFields returns the categorical fields that can be matched exactly.
func (d Domain) FilterFields() []string {
	switch d {
	case DomainCharacter:
		return []string{"status", "species", "type", "gender"}
	case DomainEpisode:
		return []string{"episode"}
	case DomainLocation:
		return []string{"type", "dimension"}
	}
	return nil
}

// Entity is any record keyed by the identifier the remote API assigns.
type Entity interface {
	EntityID() int
}

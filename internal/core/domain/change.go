package domain

import "time"

// ChangeEvent announces that a domain's cached rows changed.
type ChangeEvent struct {
	Domain   Domain    `json:"domain"`
	LoadType LoadType  `json:"load_type"`
	Page     int       `json:"page"`
	Count    int       `json:"count"`
	At       time.Time `json:"at"`
}

// LookupStatus is the state a point-lookup consumer renders.
type LookupStatus string

const (
	LookupLoading LookupStatus = "loading"
	LookupLoaded  LookupStatus = "loaded"
	LookupError   LookupStatus = "error"
)

// Lookup wraps a point-lookup outcome for consumers that render state.
type Lookup[T any] struct {
	Status LookupStatus `json:"status"`
	Value  T            `json:"value,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// LookupOf builds a Lookup from a value and error pair.
func LookupOf[T any](v T, err error) Lookup[T] {
	if err != nil {
		return Lookup[T]{Status: LookupError, Error: err.Error()}
	}
	return Lookup[T]{Status: LookupLoaded, Value: v}
}

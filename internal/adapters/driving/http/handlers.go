package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error     string `json:"error" example:"invalid input: bad id \"x\""`
	RequestID string `json:"request_id,omitempty" example:"3f1c..."`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ReadyResponse lists the state of each dependency
// @Description Readiness response
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks"`
}

// listParams are the query parameters every list endpoint accepts besides
// the per-domain filter fields.
type listParams struct {
	Offset int    `validate:"min=0"`
	Limit  int    `validate:"min=0,max=200"`
	Query  string `validate:"max=200"`
}

var reservedParams = map[string]bool{"offset": true, "limit": true, "q": true, "name": true}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the cache database and, when configured, Redis
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Checks: map[string]string{}}
	status := http.StatusOK

	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(r.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			return
		}
		resp.Checks[name] = "ok"
	}
	check("store", s.store)
	check("redis", s.redisClient)

	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Domain endpoints

// handleList godoc
// @Summary      List cached entities
// @Description  Returns a window of the cached, filtered list, fetching remote pages as needed.
// @Description  Any other query parameter is an exact, case-insensitive match on that field.
// @Tags         Catalog
// @Produce      json
// @Param        domain  path   string  true   "characters, episodes or locations"
// @Param        q       query  string  false  "Case-insensitive name substring"
// @Param        offset  query  int     false  "Window offset"
// @Param        limit   query  int     false  "Window size (default 20, max 200)"
// @Success      200  {object}  domain.Window[domain.Character]
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse  "Unknown domain"
// @Router       /api/v1/{domain} [get]
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pathDomain(w, r)
	if !ok {
		return
	}
	filter, params, err := s.parseList(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	switch d {
	case domain.DomainCharacter:
		serveWindow(s, w, r, s.catalog.Characters(), filter, params)
	case domain.DomainEpisode:
		serveWindow(s, w, r, s.catalog.Episodes(), filter, params)
	case domain.DomainLocation:
		serveWindow(s, w, r, s.catalog.Locations(), filter, params)
	}
}

func serveWindow[T domain.Entity](s *Server, w http.ResponseWriter, r *http.Request, svc driving.EntityService[T], filter domain.Filter, p listParams) {
	win, err := svc.Window(r.Context(), filter, p.Offset, p.Limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

// handleGet godoc
// @Summary      Get entities from the remote API
// @Description  A single id returns an object; a comma-separated list returns an array. Not cached.
// @Tags         Catalog
// @Produce      json
// @Param        domain  path  string  true  "characters, episodes or locations"
// @Param        ids     path  string  true  "Id or comma-separated ids"
// @Success      200  {object}  domain.Character
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse  "Remote API unreachable or failing"
// @Router       /api/v1/{domain}/{ids} [get]
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pathDomain(w, r)
	if !ok {
		return
	}
	ids, err := domain.ParseIDList(r.PathValue("ids"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	single := !strings.Contains(r.PathValue("ids"), ",")

	switch d {
	case domain.DomainCharacter:
		serveLookup(s, w, r, s.catalog.Characters(), ids, single)
	case domain.DomainEpisode:
		serveLookup(s, w, r, s.catalog.Episodes(), ids, single)
	case domain.DomainLocation:
		serveLookup(s, w, r, s.catalog.Locations(), ids, single)
	}
}

func serveLookup[T domain.Entity](s *Server, w http.ResponseWriter, r *http.Request, svc driving.EntityService[T], ids []int, single bool) {
	if single {
		item, err := svc.Get(r.Context(), ids[0])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
		return
	}
	items, err := svc.GetMany(r.Context(), ids)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleRefresh godoc
// @Summary      Force a refresh
// @Description  Clears the domain's cache and reloads page 1
// @Tags         Catalog
// @Produce      json
// @Param        domain  path  string  true  "characters, episodes or locations"
// @Success      200  {object}  domain.LoadResult
// @Failure      404  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /api/v1/{domain}/refresh [post]
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pathDomain(w, r)
	if !ok {
		return
	}
	res, err := s.catalog.Refresh(r.Context(), d)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Relation endpoints

// handleCharacterEpisodes godoc
// @Summary      Episodes of a character
// @Tags         Relations
// @Produce      json
// @Param        id  path  int  true  "Character id"
// @Success      200  {array}   domain.Episode
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/characters/{id}/episodes [get]
func (s *Server) handleCharacterEpisodes(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	items, err := s.catalog.CharacterEpisodes(r.Context(), id)
	s.writeResult(w, r, items, err)
}

// handleCharacterOrigin godoc
// @Summary      Origin of a character
// @Tags         Relations
// @Produce      json
// @Param        id  path  int  true  "Character id"
// @Success      200  {object}  domain.Location
// @Failure      404  {object}  ErrorResponse  "Unknown character or origin"
// @Router       /api/v1/characters/{id}/origin [get]
func (s *Server) handleCharacterOrigin(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	loc, err := s.catalog.CharacterOrigin(r.Context(), id)
	s.writeResult(w, r, loc, err)
}

// handleCharacterLocation godoc
// @Summary      Last known location of a character
// @Tags         Relations
// @Produce      json
// @Param        id  path  int  true  "Character id"
// @Success      200  {object}  domain.Location
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/characters/{id}/location [get]
func (s *Server) handleCharacterLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	loc, err := s.catalog.CharacterLocation(r.Context(), id)
	s.writeResult(w, r, loc, err)
}

// handleEpisodeCharacters godoc
// @Summary      Characters of an episode
// @Tags         Relations
// @Produce      json
// @Param        id  path  int  true  "Episode id"
// @Success      200  {array}   domain.Character
// @Router       /api/v1/episodes/{id}/characters [get]
func (s *Server) handleEpisodeCharacters(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	items, err := s.catalog.EpisodeCharacters(r.Context(), id)
	s.writeResult(w, r, items, err)
}

// handleLocationResidents godoc
// @Summary      Residents of a location
// @Tags         Relations
// @Produce      json
// @Param        id  path  int  true  "Location id"
// @Success      200  {array}   domain.Character
// @Router       /api/v1/locations/{id}/residents [get]
func (s *Server) handleLocationResidents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	items, err := s.catalog.LocationResidents(r.Context(), id)
	s.writeResult(w, r, items, err)
}

// Warm endpoints

// handleWarmStates godoc
// @Summary      Warm states
// @Description  Last and next background refresh per domain
// @Tags         Warm
// @Produce      json
// @Success      200  {array}   domain.WarmState
// @Failure      404  {object}  ErrorResponse  "Warmer disabled"
// @Router       /api/v1/warm [get]
func (s *Server) handleWarmStates(w http.ResponseWriter, r *http.Request) {
	if s.warmer == nil {
		writeError(w, http.StatusNotFound, "warmer disabled")
		return
	}
	states, err := s.warmer.States(r.Context())
	if states == nil {
		states = []*domain.WarmState{}
	}
	s.writeResult(w, r, states, err)
}

// handleWarmAll godoc
// @Summary      Warm every domain now
// @Tags         Warm
// @Produce      json
// @Success      200  {array}   domain.WarmResult
// @Failure      404  {object}  ErrorResponse  "Warmer disabled"
// @Router       /api/v1/warm [post]
func (s *Server) handleWarmAll(w http.ResponseWriter, r *http.Request) {
	if s.warmer == nil {
		writeError(w, http.StatusNotFound, "warmer disabled")
		return
	}
	results, err := s.warmer.WarmAll(r.Context())
	s.writeResult(w, r, results, err)
}

// Helpers

// parseList reads the window parameters and the filter. Unknown parameters
// become filter fields, which the service validates per domain.
func (s *Server) parseList(r *http.Request) (domain.Filter, listParams, error) {
	q := r.URL.Query()
	var p listParams
	var err error

	if p.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		return domain.Filter{}, p, err
	}
	if p.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		return domain.Filter{}, p, err
	}
	p.Query = q.Get("q")
	if p.Query == "" {
		p.Query = q.Get("name")
	}
	if err := s.validate.Struct(p); err != nil {
		return domain.Filter{}, p, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	filter := domain.Filter{Query: p.Query}
	for k, vs := range q {
		if reservedParams[k] || len(vs) == 0 {
			continue
		}
		if filter.Fields == nil {
			filter.Fields = make(map[string]string)
		}
		filter.Fields[k] = vs[0]
	}
	return filter, p, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return n, nil
}

func (s *Server) pathDomain(w http.ResponseWriter, r *http.Request) (domain.Domain, bool) {
	d, err := domain.ParseDomain(r.PathValue("domain"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return "", false
	}
	return d, true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownDomain):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

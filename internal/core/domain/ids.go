package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// IDFromURL extracts the trailing path segment of an entity URL as an id,
// e.g. https://rickandmortyapi.com/api/episode/28 -> 28.
func IDFromURL(u string) (int, error) {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u == "" {
		return 0, fmt.Errorf("%w: empty url", ErrInvalidInput)
	}
	seg := u[strings.LastIndex(u, "/")+1:]
	id, err := strconv.Atoi(seg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: no id in url %q", ErrInvalidInput, u)
	}
	return id, nil
}

// IDsFromURLs extracts ids from relation URLs, skipping blanks and keeping
// the first occurrence of each id.
func IDsFromURLs(urls []string) ([]int, error) {
	ids := make([]int, 0, len(urls))
	seen := make(map[int]struct{}, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		id, err := IDFromURL(u)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// JoinIDs renders ids as the comma-joined list the API accepts.
func JoinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// ParseIDList parses "1,2,3" into ids.
func ParseIDList(s string) ([]int, error) {
	var ids []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: bad id %q", ErrInvalidInput, p)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids", ErrInvalidInput)
	}
	return ids, nil
}

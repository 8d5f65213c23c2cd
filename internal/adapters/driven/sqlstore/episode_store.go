package sqlstore

import "github.com/custodia-labs/rickandmorty-sync/internal/core/domain"

// NewEpisodeStore creates the episode cache over db.
func NewEpisodeStore(db *DB) *EntityStore[domain.Episode] {
	return newEntityStore(db, codec[domain.Episode]{
		domain:     domain.DomainEpisode,
		table:      "episodes",
		keysTable:  "episode_remote_keys",
		columns:    []string{"id", "name", "air_date", "episode", "url", "created"},
		nameColumn: "name",
		fields:     map[string]string{"episode": "episode"},
		values: func(e domain.Episode) []any {
			return []any{e.ID, e.Name, e.AirDate, e.Episode, e.URL, e.Created}
		},
		scan: func(row rowScanner) (domain.Episode, error) {
			var e domain.Episode
			err := row.Scan(&e.ID, &e.Name, &e.AirDate, &e.Episode, &e.URL, &e.Created, &e.Page)
			e.Characters = []string{}
			return e, err
		},
		relations: []relation[domain.Episode]{
			{
				table:   "episode_characters",
				columns: []string{"url"},
				rows:    func(e domain.Episode) [][]string { return urlRows(e.Characters) },
				attach:  func(e *domain.Episode, v []string) { e.Characters = append(e.Characters, v[0]) },
			},
		},
	})
}

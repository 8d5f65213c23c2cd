package sqlstore

import "github.com/custodia-labs/rickandmorty-sync/internal/core/domain"

// NewCharacterStore creates the character cache over db.
func NewCharacterStore(db *DB) *EntityStore[domain.Character] {
	return newEntityStore(db, codec[domain.Character]{
		domain:     domain.DomainCharacter,
		table:      "characters",
		keysTable:  "character_remote_keys",
		columns:    []string{"id", "name", "status", "species", "type", "gender", "image", "url", "created"},
		nameColumn: "name",
		fields: map[string]string{
			"status":  "status",
			"species": "species",
			"type":    "type",
			"gender":  "gender",
		},
		values: func(c domain.Character) []any {
			return []any{c.ID, c.Name, c.Status, c.Species, c.Type, c.Gender, c.Image, c.URL, c.Created}
		},
		scan: func(row rowScanner) (domain.Character, error) {
			var c domain.Character
			err := row.Scan(&c.ID, &c.Name, &c.Status, &c.Species, &c.Type, &c.Gender, &c.Image, &c.URL, &c.Created, &c.Page)
			c.Episode = []string{}
			return c, err
		},
		relations: []relation[domain.Character]{
			{
				table:   "character_episodes",
				columns: []string{"url"},
				rows:    func(c domain.Character) [][]string { return urlRows(c.Episode) },
				attach:  func(c *domain.Character, v []string) { c.Episode = append(c.Episode, v[0]) },
			},
			{
				table:   "character_origin",
				columns: []string{"name", "url"},
				rows:    func(c domain.Character) [][]string { return refRows(c.Origin) },
				attach:  func(c *domain.Character, v []string) { c.Origin = domain.LocationRef{Name: v[0], URL: v[1]} },
			},
			{
				table:   "character_location",
				columns: []string{"name", "url"},
				rows:    func(c domain.Character) [][]string { return refRows(c.Location) },
				attach:  func(c *domain.Character, v []string) { c.Location = domain.LocationRef{Name: v[0], URL: v[1]} },
			},
		},
	})
}

func urlRows(urls []string) [][]string {
	rows := make([][]string, len(urls))
	for i, u := range urls {
		rows[i] = []string{u}
	}
	return rows
}

// refRows stores a location reference as a single row; an empty reference
// stores nothing.
func refRows(ref domain.LocationRef) [][]string {
	if ref == (domain.LocationRef{}) {
		return nil
	}
	return [][]string{{ref.Name, ref.URL}}
}

package sqlstore

import "github.com/custodia-labs/rickandmorty-sync/internal/core/domain"

// NewLocationStore creates the location cache over db.
func NewLocationStore(db *DB) *EntityStore[domain.Location] {
	return newEntityStore(db, codec[domain.Location]{
		domain:     domain.DomainLocation,
		table:      "locations",
		keysTable:  "location_remote_keys",
		columns:    []string{"id", "name", "type", "dimension", "url", "created"},
		nameColumn: "name",
		fields: map[string]string{
			"type":      "type",
			"dimension": "dimension",
		},
		values: func(l domain.Location) []any {
			return []any{l.ID, l.Name, l.Type, l.Dimension, l.URL, l.Created}
		},
		scan: func(row rowScanner) (domain.Location, error) {
			var l domain.Location
			err := row.Scan(&l.ID, &l.Name, &l.Type, &l.Dimension, &l.URL, &l.Created, &l.Page)
			l.Residents = []string{}
			return l, err
		},
		relations: []relation[domain.Location]{
			{
				table:   "location_residents",
				columns: []string{"url"},
				rows:    func(l domain.Location) [][]string { return urlRows(l.Residents) },
				attach:  func(l *domain.Location, v []string) { l.Residents = append(l.Residents, v[0]) },
			},
		},
	})
}

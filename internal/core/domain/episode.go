package domain

// Episode is an episode as returned by /episode.
type Episode struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	AirDate    string   `json:"air_date"`
	Episode    string   `json:"episode"` // code, e.g. S01E01
	Characters []string `json:"characters"`
	URL        string   `json:"url"`
	Created    string   `json:"created"`
	Page       int      `json:"page,omitempty"`
}

func (e Episode) EntityID() int { return e.ID }

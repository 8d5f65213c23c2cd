package domain

// Location is a location as returned by /location.
type Location struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Dimension string   `json:"dimension"`
	Residents []string `json:"residents"`
	URL       string   `json:"url"`
	Created   string   `json:"created"`
	Page      int      `json:"page,omitempty"`
}

func (l Location) EntityID() int { return l.ID }

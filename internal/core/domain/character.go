package domain

// Character is a character as returned by /character.
type Character struct {
	ID       int         `json:"id"`
	Name     string      `json:"name"`
	Status   string      `json:"status"`
	Species  string      `json:"species"`
	Type     string      `json:"type"`
	Gender   string      `json:"gender"`
	Origin   LocationRef `json:"origin"`
	Location LocationRef `json:"location"`
	Image    string      `json:"image"`
	Episode  []string    `json:"episode"`
	URL      string      `json:"url"`
	Created  string      `json:"created"`

	// Page is the remote page the row last arrived on. Zero for point lookups.
	Page int `json:"page,omitempty"`
}

// LocationRef is the embedded {name, url} reference to a location.
type LocationRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (c Character) EntityID() int { return c.ID }

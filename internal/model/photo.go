package model

// Photo is a stored image under a year. Filename is the stored name
// ({timestamp}_{sanitized original}); URL is the public path it is served at.
type Photo struct {
	Year     string `json:"-"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

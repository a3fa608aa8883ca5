package octocam

import "time"

// PublishedEvent is emitted when a capture and its metadata are both stored.
type PublishedEvent struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	ImageAddress    string    `json:"image_address"`
	ImageURI        string    `json:"image_uri"`
	MetadataAddress string    `json:"metadata_address"`
	MetadataURI     string    `json:"metadata_uri"`
	Name            string    `json:"name"`
	Price           string    `json:"price"`
	Attributes      int       `json:"attributes"`
	PublishedAt     time.Time `json:"published_at"`
}

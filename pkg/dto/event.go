package dto

// CreateEventRequest registers a new photo pool.
type CreateEventRequest struct {
	Code        string `json:"code" binding:"required,max=32"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	StartAt     string `json:"start_at"` // RFC 3339, optional
	EndAt       string `json:"end_at"`   // RFC 3339, optional
}

type EventResponse struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StartAt     string `json:"start_at,omitempty"`
	EndAt       string `json:"end_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

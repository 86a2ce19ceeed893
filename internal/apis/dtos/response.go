package dtos

// Response wraps every API payload.
type Response struct {
	Success bool        `json:"success"`
	Error   *string     `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

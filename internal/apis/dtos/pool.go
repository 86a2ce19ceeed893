package dtos

type PoolResponse struct {
	Key          string `json:"key"`
	MaxConns     int    `json:"max_connections"`
	Active       int    `json:"active"`
	Idle         int    `json:"idle"`
	TotalCreated uint64 `json:"total_created"`
	Closed       bool   `json:"closed"`
}

type ReconnectResponse struct {
	Pools int `json:"pools"`
}

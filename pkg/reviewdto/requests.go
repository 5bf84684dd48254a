package reviewdto

type ReviewRequest struct {
	PGN   string `json:"pgn"`
	Depth int    `json:"depth,omitempty"`
}

// EngineMoveRequest asks for the computer opponent's reply. Level, when set, wins over Elo.
type EngineMoveRequest struct {
	FEN   string `json:"fen"`
	Elo   int    `json:"elo,omitempty"`
	Level string `json:"level,omitempty"`
}

type EngineMoveResponse struct {
	Move     string `json:"move"`
	SAN      string `json:"san"`
	FromBook bool   `json:"fromBook,omitempty"`
}

type Health struct {
	Status  string `json:"status"`
	Rooms   int    `json:"rooms"`
	Clients int    `json:"clients"`
	Engines int    `json:"engines"`
}

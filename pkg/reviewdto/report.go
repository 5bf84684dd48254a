package reviewdto

type Move struct {
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Capture   bool   `json:"capture,omitempty"`
	Check     bool   `json:"check,omitempty"`
}

// Evaluation is White-positive. Kind is "cp" or "mate".
type Evaluation struct {
	Kind     string `json:"kind"`
	Value    int    `json:"value"`
	Winner   int    `json:"winner,omitempty"`
	BestMove string `json:"bestMove,omitempty"`
	Display  string `json:"display"`
}

// Step is the rendered state at one review index; Steps[0] is the starting position.
type Step struct {
	Index          int     `json:"index"`
	FEN            string  `json:"fen"`
	Score          string  `json:"score"`
	EvalBar        float64 `json:"evalBar"`
	Classification string  `json:"classification,omitempty"`
	SuggestedMove  string  `json:"suggestedMove,omitempty"`
	Coach          string  `json:"coach"`
	WhiteAccuracy  float64 `json:"whiteAccuracy"`
	BlackAccuracy  float64 `json:"blackAccuracy"`
}

type SideStats struct {
	Counts   map[string]int `json:"counts"`
	Accuracy float64        `json:"accuracy"`
	Moves    int            `json:"moves"`
}

type Opening struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

type ReviewReport struct {
	ID              string       `json:"id"`
	Moves           []Move       `json:"moves"`
	Evaluations     []Evaluation `json:"evaluations"`
	Classifications []string     `json:"classifications"`
	Steps           []Step       `json:"steps"`
	White           SideStats    `json:"white"`
	Black           SideStats    `json:"black"`
	Opening         *Opening     `json:"opening,omitempty"`
}

package review

// ViewState is either Live (following the game, input enabled) or Reviewing a fixed index.
type ViewState struct {
	reviewing bool
	index     int
}

func Live() ViewState {
	return ViewState{}
}

func Reviewing(index int) ViewState {
	if index < 0 {
		index = 0
	}
	return ViewState{reviewing: true, index: index}
}

func (v ViewState) IsLive() bool {
	return !v.reviewing
}

// InputEnabled reports whether the board accepts moves.
func (v ViewState) InputEnabled() bool {
	return !v.reviewing
}

// Index is the position index to render for a game with total positions after the start.
func (v ViewState) Index(total int) int {
	if !v.reviewing || v.index > total {
		return total
	}
	return v.index
}

// Step moves the review cursor by delta, clamped to [0,total]. Stepping from Live starts at total.
func (v ViewState) Step(delta, total int) ViewState {
	i := v.Index(total) + delta
	if i < 0 {
		i = 0
	}
	if i > total {
		i = total
	}
	return Reviewing(i)
}

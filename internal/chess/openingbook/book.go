package openingbook

import (
	"fmt"
	"os"
	"strings"
	"sync"

	chesslib "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Result is a polyglot book hit for the side to move.
type Result struct {
	Move   string
	Weight uint16
}

// Opening is the ECO classification of a move sequence.
type Opening struct {
	Code  string
	Title string
}

// Book answers opening questions. The polyglot part is optional; ECO naming is always available.
type Book struct {
	poly *chesslib.PolyglotBook
}

// Open loads the polyglot book at path. An empty path yields a Book without book moves.
func Open(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return &Book{}, nil
	}
	poly, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return &Book{poly: poly}, nil
}

func LoadFromPath(bookPath string) (*chesslib.PolyglotBook, error) {
	if strings.TrimSpace(bookPath) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(bookPath)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", bookPath, err)
	}
	defer file.Close()

	book, err := chesslib.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", bookPath, err)
	}
	return book, nil
}

// HasMoves reports whether a polyglot book is loaded.
func (b *Book) HasMoves() bool {
	return b != nil && b.poly != nil
}

// Lookup returns the heaviest book move for the position reached from fen by moves.
// A zero Result means the position is out of book.
func (b *Book) Lookup(fen string, moves []string) (Result, error) {
	if !b.HasMoves() {
		return Result{}, nil
	}

	game, err := buildGameFromPosition(fen, moves)
	if err != nil {
		return Result{}, err
	}

	hasher := chesslib.NewZobristHasher()
	hashStr, err := hasher.HashPosition(game.FEN())
	if err != nil {
		return Result{}, fmt.Errorf("compute polyglot hash: %w", err)
	}

	entries := b.poly.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	if len(entries) == 0 {
		return Result{}, nil
	}

	entry := entries[0]
	mv := chesslib.DecodeMove(entry.Move).ToMove()
	uciMove := mv.String()

	// book files occasionally carry hash collisions
	if err := game.PushNotationMove(uciMove, chesslib.UCINotation{}, nil); err != nil {
		return Result{}, fmt.Errorf("book move %q invalid for position: %w", uciMove, err)
	}

	return Result{Move: uciMove, Weight: entry.Weight}, nil
}

// Identify names the deepest ECO opening matched by the UCI move list from the start position.
func Identify(moves []string) (Opening, bool) {
	if len(moves) == 0 {
		return Opening{}, false
	}
	game, err := buildGameFromPosition("", moves)
	if err != nil {
		return Opening{}, false
	}
	ecoOnce.Do(func() {
		ecoBook = opening.NewBookECO()
	})
	found := ecoBook.Find(game.Moves())
	if found == nil {
		return Opening{}, false
	}
	return Opening{Code: found.Code(), Title: found.Title()}, true
}

func buildGameFromPosition(fen string, moves []string) (*chesslib.Game, error) {
	var (
		game *chesslib.Game
		err  error
	)

	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		game = chesslib.NewGame()
	} else {
		var option func(*chesslib.Game)
		option, err = chesslib.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("parse fen %q: %w", fen, err)
		}
		game = chesslib.NewGame(option)
	}

	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %q: %w", mv, err)
		}
	}
	return game, nil
}

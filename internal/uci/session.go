package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
)

// ErrEngineClosed is returned once the engine's output stream has ended.
var ErrEngineClosed = errors.New("engine output closed")

type Options struct {
	Threads       int
	HashMB        int
	SkillLevel    int
	MultiPV       int
	LimitStrength bool
	Elo           int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

// SearchResponse is the outcome of one query. Seq identifies the query on its session.
type SearchResponse struct {
	Seq        uint64
	Candidates []Candidate
	Score      Score
	HasScore   bool
	BestMove   string
	Ponder     string
}

// Session owns one engine process. Searches are serialized: at most one query is in flight,
// and output belonging to an abandoned query is discarded before the next query starts.
type Session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	lines   chan string
	readErr error
	done    chan struct{}

	mu     sync.Mutex
	search sync.Mutex

	// guarded by search
	seq     uint64
	orphans int

	closeOnce sync.Once
}

func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}

	// The process must outlive the caller's context; ctx only bounds the handshake.
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := newSession(stdoutPipe, stdin)
	s.cmd = cmd
	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// NewSessionIO speaks UCI over an arbitrary transport, e.g. an engine reached over a socket.
func NewSessionIO(ctx context.Context, r io.Reader, w io.WriteCloser, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	s := newSession(r, w)
	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newSession(r io.Reader, w io.WriteCloser) *Session {
	s := &Session{
		stdin: w,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	go s.readLoop(r)
	return s
}

func (s *Session) readLoop(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	s.readErr = sc.Err()
}

func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	if err := s.drainOrphans(searchCtx); err != nil {
		return SearchResponse{}, fmt.Errorf("drain abandoned query: %w", err)
	}

	s.seq++
	seq := s.seq
	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	candidates := make(map[int]Candidate)
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			if searchCtx.Err() != nil {
				s.abandon(seq)
			}
			obslog.L().Warn("uci_read_error",
				zap.Uint64("seq", seq),
				zap.String("position", strings.TrimSpace(positionCmd)),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}

		switch {
		case strings.HasPrefix(line, "info "):
			if mv, cand, ok := parseInfo(line); ok {
				candidates[mv] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			best, ponder := parseBestMove(line)
			resp := SearchResponse{
				Seq:        seq,
				Candidates: collapseCandidates(candidates),
				BestMove:   best,
				Ponder:     ponder,
			}
			if top, ok := candidates[1]; ok {
				resp.Score = top.Score
				resp.HasScore = true
			}
			return resp, nil
		}
	}
}

// abandon stops the running search; its terminal bestmove is still owed and is consumed
// by the next Search before any new command is sent.
func (s *Session) abandon(seq uint64) {
	_ = s.send("stop\n")
	s.orphans++
	obslog.L().Debug("uci_query_abandoned", zap.Uint64("seq", seq), zap.Int("orphans", s.orphans))
}

func (s *Session) drainOrphans(ctx context.Context) error {
	for s.orphans > 0 {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, "bestmove") {
			s.orphans--
			obslog.L().Debug("uci_stale_bestmove_dropped", zap.String("line", line))
		}
	}
	return nil
}

func validateOptions(opt Options) error {
	if opt.SkillLevel < 0 || opt.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	}
	if opt.HashMB < 0 {
		return fmt.Errorf("hash size must be >= 0: %d", opt.HashMB)
	}
	if opt.MultiPV < 0 {
		return fmt.Errorf("multipv must be >= 0: %d", opt.MultiPV)
	}
	if opt.LimitStrength && opt.Elo <= 0 {
		return fmt.Errorf("elo must be > 0 when strength is limited: %d", opt.Elo)
	}
	return nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		ms := l.MoveTimeMillis + 2000
		return time.Duration(ms) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 500 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	s.search.Lock()
	defer s.search.Unlock()
	if err := s.drainOrphans(readyCtx); err != nil {
		return fmt.Errorf("drain abandoned query: %w", err)
	}
	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts || errors.Is(err, ErrEngineClosed) {
			return err
		}
		obslog.L().Warn("uci_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.send("quit\n")
		s.mu.Lock()
		if s.stdin != nil {
			s.stdin.Close()
		}
		s.mu.Unlock()
		close(s.done)

		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			err = s.cmd.Wait()
		}
	})
	return err
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	if err := s.applyOptions(opt); err != nil {
		return err
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) applyOptions(opt Options) error {
	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}
	multiPV := opt.MultiPV
	if multiPV <= 0 {
		multiPV = 1
	}
	cmds := []string{fmt.Sprintf("setoption name Threads value %d\n", threads)}
	if opt.HashMB > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB))
	}
	cmds = append(cmds,
		fmt.Sprintf("setoption name MultiPV value %d\n", multiPV),
		fmt.Sprintf("setoption name Skill Level value %d\n", opt.SkillLevel),
	)
	if opt.LimitStrength {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value true\n",
			fmt.Sprintf("setoption name UCI_Elo value %d\n", opt.Elo),
		)
	} else {
		cmds = append(cmds, "setoption name UCI_LimitStrength value false\n")
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return ErrEngineClosed
	}
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			if s.readErr != nil {
				return "", fmt.Errorf("%w: %v", ErrEngineClosed, s.readErr)
			}
			return "", ErrEngineClosed
		}
		return line, nil
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/park285/cheese-arena/internal/api"
	"github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/review"
	"github.com/park285/cheese-arena/internal/reviewclient"
	"github.com/park285/cheese-arena/pkg/reviewdto"
)

func main() {
	server := flag.String("server", "", "arena server base URL; reviews locally when empty")
	enginePath := flag.String("engine", os.Getenv("STOCKFISH_PATH"), "UCI engine binary for local reviews")
	depth := flag.Int("depth", review.DefaultDepth, "search depth per position")
	threads := flag.Int("threads", 1, "engine threads for local reviews")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	at := flag.Int("at", -1, "position to show in detail, 0 is the start; the final position when negative")
	flag.Parse()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: review [--server URL | --engine PATH] [--depth N] [--at N] game.pgn|-")
		os.Exit(2)
	}
	pgn, err := readInput(flag.Arg(0))
	if err != nil {
		log.Fatalf("read pgn: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var rep *reviewdto.ReviewReport
	if *server != "" {
		rep, err = reviewclient.NewClient(*server, reviewclient.WithTimeout(*timeout)).Review(ctx, pgn, *depth)
	} else {
		rep, err = reviewLocal(ctx, pgn, *enginePath, *depth, *threads)
	}
	if err != nil {
		log.Fatalf("review failed: %v", err)
	}
	if err := printReport(os.Stdout, rep); err != nil {
		log.Fatalf("print: %v", err)
	}
	printStep(os.Stdout, rep, cursor(*at))
}

func cursor(at int) review.ViewState {
	if at < 0 {
		return review.Live()
	}
	return review.Reviewing(at)
}

func readInput(name string) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(name)
	return string(b), err
}

func reviewLocal(ctx context.Context, pgn, enginePath string, depth, threads int) (*reviewdto.ReviewReport, error) {
	moves, err := review.ParseMoves(pgn)
	if err != nil {
		return nil, err
	}

	var analyzer review.Analyzer
	if strings.TrimSpace(enginePath) != "" {
		engine, err := chess.NewEngine(chess.Config{
			BinaryPath:   enginePath,
			PoolSize:     1,
			Threads:      threads,
			HashMB:       64,
			QueryTimeout: time.Minute,
		})
		if err != nil {
			return nil, err
		}
		defer engine.Close()
		analyzer = engine
	} else {
		fmt.Fprintln(os.Stderr, "no engine configured; every position will read 0.00")
	}

	progress := review.WithProgress(func(p review.Progress) {
		fmt.Fprintf(os.Stderr, "\ranalysing %d/%d", p.Done, p.Total)
		if p.Done == p.Total {
			fmt.Fprintln(os.Stderr)
		}
	})
	reviewer := review.NewReviewer(review.NewPipeline(analyzer, depth, progress))
	defer reviewer.Close()
	reviewer.Start(ctx, moves)
	session, err := reviewer.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return api.BuildReport(uuid.NewString(), session, review.NewCoach(nil))
}

func printReport(w io.Writer, rep *reviewdto.ReviewReport) error {
	if rep.Opening != nil {
		fmt.Fprintf(w, "Opening: %s %s\n\n", rep.Opening.Code, rep.Opening.Title)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tMOVE\tEVAL\tCLASS\tBEST")
	for i, mv := range rep.Moves {
		step := rep.Steps[i+1]
		num := fmt.Sprintf("%d.", i/2+1)
		if i%2 == 1 {
			num = fmt.Sprintf("%d...", i/2+1)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", num, mv.SAN, step.Score, step.Classification, step.SuggestedMove)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tWHITE\tBLACK")
	fmt.Fprintf(tw, "accuracy\t%.1f%%\t%.1f%%\n", rep.White.Accuracy, rep.Black.Accuracy)
	for _, c := range review.Classifications {
		key := string(c)
		fmt.Fprintf(tw, "%s\t%d\t%d\n", key, rep.White.Counts[key], rep.Black.Counts[key])
	}
	return tw.Flush()
}

// printStep shows the board-screen detail for the position state points at.
func printStep(w io.Writer, rep *reviewdto.ReviewReport, state review.ViewState) {
	if len(rep.Steps) == 0 {
		return
	}
	step := rep.Steps[state.Index(len(rep.Steps)-1)]
	fmt.Fprintf(w, "\nPosition %d  %s", step.Index, step.Score)
	if step.Classification != "" {
		fmt.Fprintf(w, "  %s", step.Classification)
	}
	if step.SuggestedMove != "" {
		fmt.Fprintf(w, "  best was %s", step.SuggestedMove)
	}
	fmt.Fprintf(w, "\n%s\n", step.Coach)
}

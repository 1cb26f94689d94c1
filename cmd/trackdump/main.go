// trackdump - inspect facetrack track logs
//
// Without -session it lists recorded sessions; with -session (or -latest)
// it prints one line per track.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/teslashibe/go-facetrack/internal/config"
	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/store"
)

func main() {
	dbPath := flag.String("db", config.String("DB", config.DefaultDBPath), "Track log database")
	session := flag.String("session", "", "Session id to summarize")
	latest := flag.Bool("latest", false, "Summarize the most recent session")
	asJSON := flag.Bool("json", false, "Print JSON instead of a table")
	flag.Parse()

	log.Init("warn")

	if err := run(context.Background(), os.Stdout, *dbPath, *session, *latest, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "trackdump: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, dbPath, session string, latest, asJSON bool) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("open track log: %w", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if session == "" && !latest {
		sessions, err := db.Sessions(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(w, sessions)
		}
		return printSessions(w, sessions)
	}

	var sess store.Session
	if latest && session == "" {
		sessions, err := db.Sessions(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return fmt.Errorf("no sessions in %s", dbPath)
		}
		sess = sessions[0]
	} else if sess, err = db.Session(ctx, session); err != nil {
		return err
	}

	tracks, err := db.TrackSummaries(ctx, sess.ID)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, struct {
			Session store.Session        `json:"session"`
			Tracks  []store.TrackSummary `json:"tracks"`
		}{sess, tracks})
	}
	return printTracks(w, sess, tracks)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSessions(w io.Writer, sessions []store.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSOURCE\tSTARTED\tDURATION\tFRAMES")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.Source, s.StartedAt.Local().Format(time.DateTime), duration(s), s.Frames)
	}
	return tw.Flush()
}

func printTracks(w io.Writer, sess store.Session, tracks []store.TrackSummary) error {
	fmt.Fprintf(w, "session %s (%s), %d frames, %d tracks\n\n", sess.ID, sess.Source, sess.Frames, len(tracks))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tCREATED\tEVICTED\tREASON\tSHOWN\tFIRST\tLAST\tMEAN SIZE")
	for _, t := range tracks {
		evicted, reason := "-", "-"
		if t.EvictedAt > 0 {
			evicted, reason = fmt.Sprint(t.EvictedAt), string(t.EvictReason)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%d\t%d\t%.0fx%.0f\n",
			t.TrackID, t.CreatedAt, evicted, reason, t.Shown, t.FirstShown, t.LastShown, t.MeanWidth, t.MeanHeight)
	}
	return tw.Flush()
}

func duration(s store.Session) string {
	if s.EndedAt == nil {
		return "running"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
}

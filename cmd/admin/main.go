package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/config"
	"groupouting/backend/internal/storage"
)

const usage = `Usage: admin <command> <room_id>

Commands:
  close-room <room_id>     stop accepting joins and messages
  open-room <room_id>      reopen a closed room
  participants <room_id>   list active participants
  export <room_id>         print the room's message history as JSON lines`

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	command, roomID := os.Args[1], os.Args[2]

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := cfg.NewLogger()
	log.SetOutput(os.Stderr)

	db, err := storage.OpenDB(cfg.DBDriver, cfg.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect database")
	}
	store := storage.NewStorageService(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch command {
	case "close-room":
		err = setActive(ctx, store, roomID, false)
	case "open-room":
		err = setActive(ctx, store, roomID, true)
	case "participants":
		err = listParticipants(ctx, store, roomID, os.Stdout)
	case "export":
		err = exportMessages(ctx, store, roomID, os.Stdout)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		log.WithError(err).WithField("room_id", roomID).Fatalf("%s failed", command)
	}
}

func setActive(ctx context.Context, s storage.Storage, roomID string, active bool) error {
	if err := s.SetRoomActive(ctx, roomID, active); err != nil {
		return err
	}
	state := "closed"
	if active {
		state = "open"
	}
	fmt.Printf("Room %s is now %s.\n", roomID, state)
	return nil
}

func listParticipants(ctx context.Context, s storage.Storage, roomID string, out io.Writer) error {
	members, err := s.ListActiveMembers(ctx, roomID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tKIND\tNAME\tJOINED")
	for _, m := range members {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.UserID, m.UserKind, m.DisplayName, m.JoinedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// exportMessages walks history newest page first and writes it oldest first.
func exportMessages(ctx context.Context, s storage.Storage, roomID string, out io.Writer) error {
	if _, err := s.GetRoomByID(ctx, roomID); err != nil {
		return err
	}

	const pageSize = config.MaxMessagePageSize
	var pages [][]byte
	var before uint
	for {
		page, err := s.ListMessages(ctx, roomID, before, pageSize)
		if err != nil {
			return err
		}
		var chunk []byte
		for _, m := range page {
			line, err := json.Marshal(m)
			if err != nil {
				return err
			}
			chunk = append(append(chunk, line...), '\n')
		}
		pages = append(pages, chunk)
		if len(page) < pageSize {
			break
		}
		before = page[0].ID
	}

	for i := len(pages) - 1; i >= 0; i-- {
		if _, err := out.Write(pages[i]); err != nil {
			return err
		}
	}
	return nil
}

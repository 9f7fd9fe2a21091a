package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/dupuishugo80/ranked4/client/loop"
	"github.com/dupuishugo80/ranked4/client/model"
	"github.com/dupuishugo80/ranked4/client/session"
	"github.com/dupuishugo80/ranked4/client/view"
	"github.com/rs/zerolog"
)

const helpText = `commands:
  queue           join the ranked matchmaking queue
  cancel          leave the queue
  host            create a private match and print its code
  join <code>     join a private match
  start           start the hosted private match once a friend joined
  ai [1-3]        play against the AI (1 easy, 2 medium, 3 hard)
  game <id>       rejoin a game by id
  move <1-7>      drop a disc in a column
  react <code>    send a reaction
  leave           leave the current game or lobby
  help            print this help
  quit            exit`

type (
	consoleConfig struct {
		Logger   *zerolog.Logger
		Loop     *loop.Loop
		Session  *session.Coordinator
		Profiles view.ProfileService
		Out      io.Writer
		Dump     bool
	}

	// console maps text commands onto the views and prints their state.
	console struct {
		logger zerolog.Logger
		loop   *loop.Loop
		sess   *session.Coordinator
		out    io.Writer
		dump   bool

		game  *view.GameView
		queue *view.MatchmakingView
		lobby *view.PrivateLobbyView

		inGame    bool
		lastGame  view.GameState
		lastQueue view.MatchmakingState
		lastLobby view.LobbyState
	}
)

func newConsole(cfg consoleConfig) *console {
	return &console{
		logger: cfg.Logger.With().Str("component", "console").Logger(),
		loop:   cfg.Loop,
		sess:   cfg.Session,
		out:    cfg.Out,
		dump:   cfg.Dump,
		game: view.NewGameView(view.GameViewConfig{
			Logger:   cfg.Logger,
			Loop:     cfg.Loop,
			Session:  cfg.Session,
			Profiles: cfg.Profiles,
		}),
		queue: view.NewMatchmakingView(view.MatchmakingViewConfig{
			Logger:  cfg.Logger,
			Loop:    cfg.Loop,
			Session: cfg.Session,
		}),
		lobby: view.NewPrivateLobbyView(view.PrivateLobbyViewConfig{
			Logger:  cfg.Logger,
			Loop:    cfg.Loop,
			Session: cfg.Session,
		}),
	}
}

// start wires the console to the session streams.
func (c *console) start() {
	c.loop.Post(func() {
		c.sess.Errors().Subscribe(func(msg string) {
			c.printf("! %s\n", msg)
		})
		c.sess.Status().Subscribe(c.onStatus)
		c.game.State().Subscribe(c.renderGame)
		c.game.Cues().Subscribe(func(cue view.Cue) {
			if cue == view.CueYourTurn {
				c.printf("\a")
			}
		})
		c.queue.State().Subscribe(c.renderQueue)
		c.lobby.State().Subscribe(c.renderLobby)
		if c.dump {
			c.sess.Snapshot().Subscribe(func(snap *model.GameSnapshot) {
				if snap != nil {
					spew.Fdump(c.out, snap)
				}
			})
		}
	})
}

func (c *console) stop() {
	c.game.Stop()
	c.queue.Stop()
	c.lobby.Stop()
}

// onStatus attaches the game view whenever the session enters a game.
func (c *console) onStatus(s session.Status) {
	switch s {
	case session.StatusInGame:
		if !c.inGame {
			c.inGame = true
			c.game.Start(c.sess.GameID())
		}
	case session.StatusIdle:
		c.inGame = false
	}
}

// exec runs one command line. It returns false when the user quits.
func (c *console) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		c.printHelp()
	case "queue":
		c.queue.Enter()
	case "cancel":
		c.queue.Cancel()
	case "host":
		c.lobby.Open()
		c.lobby.Create()
	case "join":
		if len(args) != 1 {
			c.printf("usage: join <code>\n")
			return true
		}
		c.lobby.Open()
		c.lobby.Join(args[0])
	case "start":
		c.lobby.Start()
	case "ai":
		difficulty := session.DefaultAIDifficulty
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				c.printf("usage: ai [1-3]\n")
				return true
			}
			difficulty = n
		}
		c.sess.PlayAgainstAI(difficulty)
	case "game":
		if len(args) != 1 {
			c.printf("usage: game <id>\n")
			return true
		}
		c.loop.Post(func() { c.inGame = true })
		c.game.Start(args[0])
	case "move":
		col, err := parseColumn(args)
		if err != nil {
			c.printf("usage: move <1-%d>\n", model.Cols)
			return true
		}
		c.game.Move(col)
	case "react":
		if len(args) != 1 {
			c.printf("usage: react <code>\n")
			return true
		}
		c.game.React(args[0])
	case "leave":
		c.game.Stop()
		c.lobby.Stop()
		c.queue.Stop()
	default:
		c.printf("unknown command %q, type help\n", cmd)
	}
	return true
}

func (c *console) printHelp() {
	c.printf("%s\n", helpText)
}

func (c *console) renderQueue(st view.MatchmakingState) {
	if st.Phrase != c.lastQueue.Phrase {
		c.printf("%s\n", st.Phrase)
	}
	if st.Seconds > 0 && st.Seconds%15 == 0 && st.Seconds != c.lastQueue.Seconds {
		c.printf("waiting %s\n", st.Elapsed)
	}
	c.lastQueue = st
}

func (c *console) renderLobby(st view.LobbyState) {
	if st.Code != "" && st.Code != c.lastLobby.Code {
		c.printf("private match code: %s\n", st.Code)
	}
	if st.GuestJoined && !c.lastLobby.GuestJoined {
		c.printf("a friend joined, type start\n")
	}
	if st.Phrase != c.lastLobby.Phrase && st.Status != session.StatusIdle {
		c.printf("%s\n", st.Phrase)
	}
	c.lastLobby = st
}

func (c *console) renderGame(st view.GameState) {
	prev := c.lastGame
	c.lastGame = st

	for id, ev := range st.Reactions {
		if old, ok := prev.Reactions[id]; !ok || old.Timestamp != ev.Timestamp {
			c.printf("%s reacts: %s\n", c.playerName(st, id), ev.GifCode)
		}
	}
	if st.Board == nil {
		return
	}
	if st.Message == prev.Message && boardEqual(st.Board, prev.Board) {
		if r := st.TurnTimeRemaining; r != nil && st.IsMyTurn && *r <= 10 && *r > 0 &&
			(prev.TurnTimeRemaining == nil || *prev.TurnTimeRemaining != *r) {
			c.printf("%ds left\n", *r)
		}
		if st.EloChange != nil && prev.EloChange == nil {
			c.printf("rating %+d\n", *st.EloChange)
		}
		return
	}

	var b strings.Builder
	if st.Me != nil && st.Opponent != nil {
		fmt.Fprintf(&b, "%s (%d) vs %s (%d)\n", st.Me.DisplayName, st.Me.Elo, st.Opponent.DisplayName, st.Opponent.Elo)
	}
	for r, row := range st.Board {
		for col, cell := range row {
			mark := "."
			switch cell {
			case '1':
				mark = "X"
			case '2':
				mark = "O"
			}
			if st.LastMove != nil && st.LastMove.Row == r && st.LastMove.Col == col {
				mark = strings.ToLower(mark)
			}
			b.WriteString(" " + mark)
		}
		b.WriteByte('\n')
	}
	for col := 1; col <= model.Cols; col++ {
		fmt.Fprintf(&b, " %d", col)
	}
	b.WriteByte('\n')
	b.WriteString(st.Message)
	if st.Gold != nil && *st.Gold > 0 {
		fmt.Fprintf(&b, " +%d gold", *st.Gold)
	}
	b.WriteByte('\n')
	c.printf("%s", b.String())
}

func (c *console) playerName(st view.GameState, playerID string) string {
	for _, p := range []*model.PlayerInfo{st.Me, st.Opponent} {
		if p != nil && p.UserID == playerID {
			return p.DisplayName
		}
	}
	return playerID
}

func (c *console) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		c.logger.Error().Err(err).Msg("failed to write output")
	}
}

// parseColumn converts a 1-based column argument.
func parseColumn(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected one column")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, err
	}
	if n < 1 || n > model.Cols {
		return 0, fmt.Errorf("column %d out of range", n)
	}
	return n - 1, nil
}

func boardEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if string(a[i]) != string(b[i]) {
			return false
		}
	}
	return true
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines <- sc.Text()
	}
}

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/arenaengine/internal/model"
	"github.com/mcoot/arenaengine/internal/protocol"
)

func newPlayCmd() *cobra.Command {
	var opts playOptions

	cmd := &cobra.Command{
		Use:   "play <game-type>",
		Short: "Join a game over the websocket protocol and stream its messages",
		Long: `Connect to the game endpoint, authenticate with the current token and join
a session of the given game type, then print every message the server sends.

Actions passed with --action are submitted once the game starts. While the
game runs, lines read from stdin are submitted as well:

  <action-type> [json-data]   submit a game action
  leave                       leave the session
  quit                        disconnect

The command exits after the game ends. Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.gameType = model.GameType(args[0])
			return play(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Join this session instead of matchmaking")
	cmd.Flags().Int64Var(&opts.stake, "stake", 0, "Stake to put up")
	cmd.Flags().IntVar(&opts.maxPlayers, "max-players", 0, "Max players when a session is created (default: server default)")
	cmd.Flags().IntVar(&opts.minPlayers, "min-players", 0, "Min players when a session is created (default: server default)")
	cmd.Flags().StringArrayVar(&opts.actions, "action", nil, "Action to submit once started, as type or type=json (repeatable)")

	return cmd
}

type playOptions struct {
	gameType   model.GameType
	sessionID  string
	stake      int64
	maxPlayers int
	minPlayers int
	actions    []string
}

// gameConn serialises writes; gorilla connections allow one writer at a time
type gameConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *gameConn) send(msg protocol.Inbound) error {
	data, err := protocol.Encode(msg, time.Now())
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *gameConn) read() (protocol.Envelope, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.DecodeEnvelope(data)
}

func play(ctx context.Context, opts playOptions) error {
	if cfg.Token == "" {
		return errors.New("a token is required, see 'arenactl token issue'")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, client.WebsocketURL(), nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	conn := &gameConn{ws: ws}
	defer func() { _ = ws.Close() }()

	// Unblock the read loop on cancellation
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	if err := handshake(conn); err != nil {
		return err
	}

	join := protocol.JoinGame{GameType: opts.gameType, SessionID: opts.sessionID, Stake: opts.stake}
	if opts.maxPlayers > 0 || opts.minPlayers > 0 {
		join.Config = &protocol.SessionConfig{MaxPlayers: opts.maxPlayers, MinPlayers: opts.minPlayers}
	}
	if err := conn.send(join); err != nil {
		return fmt.Errorf("join failed: %w", err)
	}

	var (
		sessionMu sync.Mutex
		sessionID model.SessionID
	)
	currentSession := func() model.SessionID {
		sessionMu.Lock()
		defer sessionMu.Unlock()
		return sessionID
	}
	go readCommands(conn, currentSession, stop)

	for {
		env, err := conn.read()
		if err != nil {
			if ctx.Err() != nil {
				printLine("disconnected", "")
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}
		printEnvelope(env)

		switch env.Type {
		case protocol.TypeGameJoined:
			var joined protocol.GameJoinedPayload
			if err := env.DecodePayload(&joined); err == nil {
				sessionMu.Lock()
				sessionID = joined.SessionID
				sessionMu.Unlock()
			}
		case protocol.TypeGameStarted:
			for _, raw := range opts.actions {
				action, err := parseAction(currentSession(), raw)
				if err != nil {
					return err
				}
				if err := conn.send(action); err != nil {
					return fmt.Errorf("action failed: %w", err)
				}
			}
		case protocol.TypeGameEnded:
			return nil
		}
	}
}

// handshake consumes the welcome and authenticates the connection
func handshake(conn *gameConn) error {
	welcome, err := conn.read()
	if err != nil {
		return fmt.Errorf("no welcome from server: %w", err)
	}
	printEnvelope(welcome)

	if err := conn.send(protocol.Authenticate{Token: cfg.Token}); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	env, err := conn.read()
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	printEnvelope(env)

	var result protocol.AuthenticationResultPayload
	if env.Type != protocol.TypeAuthenticationResult || env.DecodePayload(&result) != nil {
		return fmt.Errorf("unexpected %s message during authentication", env.Type)
	}
	if !result.OK {
		return fmt.Errorf("authentication rejected: %s", result.Reason)
	}
	return nil
}

func readCommands(conn *gameConn, session func() model.SessionID, stop func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var msg protocol.Inbound
		switch {
		case line == "":
			continue
		case line == "quit":
			stop()
			return
		case line == "leave":
			msg = protocol.LeaveGame{SessionID: session()}
		default:
			action, err := parseAction(session(), strings.Replace(line, " ", "=", 1))
			if err != nil {
				printLine("error", err.Error())
				continue
			}
			msg = action
		}
		if err := conn.send(msg); err != nil {
			printLine("error", err.Error())
			return
		}
	}
}

// parseAction reads "type" or "type=json"
func parseAction(sessionID model.SessionID, raw string) (protocol.GameAction, error) {
	actionType, data, _ := strings.Cut(raw, "=")
	action := protocol.GameAction{SessionID: sessionID, ActionType: model.ActionType(actionType)}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return protocol.GameAction{}, fmt.Errorf("action %q data is not valid JSON", actionType)
		}
		action.Data = json.RawMessage(data)
	}
	return action, nil
}

func printEnvelope(env protocol.Envelope) {
	if cfg.Output == "json" {
		data, _ := json.Marshal(env)
		fmt.Println(string(data))
		return
	}
	printLine(string(env.Type), string(env.Payload))
}

func printLine(event, data string) {
	if cfg.Output == "json" {
		data, _ := json.Marshal(map[string]string{"type": event, "message": data})
		fmt.Println(string(data))
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	// Truncate data if it's too long for display
	if !cfg.Verbose && len(data) > 160 {
		data = data[:160] + "..."
	}
	fmt.Printf("[%s] %s: %s\n", timestamp, event, data)
}

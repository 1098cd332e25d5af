package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/georally/internal/gateway"
	"github.com/mcoot/georally/internal/model"
)

func newPlayCmd() *cobra.Command {
	var difficulty, name, playerID string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join the queue and play one round",
		Long: `Connect to the server's websocket, join the queue and play one round.

The round parameters are verified and the ready handshake is sent as soon as
a match is found. Events are printed as they arrive. While the round runs,
these commands are read from stdin:

  answer <country>, <neighbour>, <target>   propose one hop
  finish <moves>                            report reaching the target
  quit                                      disconnect

The command exits when the round ends. Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := model.Difficulty(difficulty)
			if !d.Valid() {
				return fmt.Errorf("difficulty %q: %w", difficulty, model.ErrValidation)
			}

			wsURL, err := client.WebsocketURL("/ws")
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}
			defer func() { _ = conn.Close() }()

			p := &player{conn: conn, out: output(cmd), verbose: cfg.Verbose}
			return p.run(ctx, cmd.InOrStdin(), gateway.JoinQueueRequest{
				Difficulty:  d,
				PlayerID:    model.PlayerID(playerID),
				DisplayName: name,
			})
		},
	}

	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", string(model.DifficultyMedium), "Difficulty: easy, medium, hard")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&playerID, "player-id", "", "Reuse a player id from an earlier connection")

	return cmd
}

// player drives one websocket connection through a round
type player struct {
	conn    *websocket.Conn
	out     *Output
	verbose bool

	writeMu sync.Mutex
	outMu   sync.Mutex

	mu    sync.Mutex
	id    model.PlayerID
	round *model.RoundStartPayload
}

func (p *player) run(ctx context.Context, in io.Reader, join gateway.JoinQueueRequest) error {
	if err := p.send(gateway.TypeJoinQueue, join); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = p.conn.Close()
		case <-done:
		}
	}()
	go p.readInput(in)

	for {
		var msg gateway.Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				p.message("Disconnected")
				return nil
			}
			return fmt.Errorf("connection closed: %w", err)
		}

		finished, err := p.handle(msg)
		if err != nil || finished {
			return err
		}
	}
}

// handle prints one inbound event and reacts to it. It reports whether the round is over.
func (p *player) handle(msg gateway.Message) (bool, error) {
	eventType := model.EventType(msg.Type)
	if eventType != model.EventUpdateWaitingCount || p.verbose {
		p.outMu.Lock()
		p.out.PrintEvent(msg.Type, msg.Payload)
		p.outMu.Unlock()
	}

	switch eventType {
	case model.EventJoinedQueue:
		var payload model.JoinedQueuePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return false, fmt.Errorf("bad %s payload: %w", msg.Type, err)
		}
		p.mu.Lock()
		p.id = payload.PlayerID
		p.mu.Unlock()

	case model.EventRoundStart:
		var payload model.RoundStartPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return false, fmt.Errorf("bad %s payload: %w", msg.Type, err)
		}
		p.mu.Lock()
		p.id = payload.PlayerID
		p.round = &payload
		p.mu.Unlock()
		return false, p.handshake(payload)

	case model.EventRoundVerified:
		var payload model.RoundVerifiedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return false, fmt.Errorf("bad %s payload: %w", msg.Type, err)
		}
		if payload.Invalid {
			reason := "unknown reason"
			if payload.ErrorMessage != nil {
				reason = *payload.ErrorMessage
			}
			return true, fmt.Errorf("round rejected by server: %s", reason)
		}

	case model.EventRoundWon, model.EventRoundLost, model.EventRoundCancelled, model.EventMatchFailed:
		return true, nil
	}
	return false, nil
}

// handshake verifies the announced round and reports ready
func (p *player) handshake(r model.RoundStartPayload) error {
	if err := p.send(gateway.TypeVerifyRound, gateway.VerifyRoundRequest{
		SessionID:  r.SessionID,
		PlayerID:   r.PlayerID,
		Start:      r.Start,
		Middle:     r.Middle,
		Target:     r.Target,
		Banned:     r.Banned,
		Difficulty: r.Difficulty,
	}); err != nil {
		return err
	}
	return p.send(gateway.TypeReconnect, gateway.ReconnectRequest{
		SessionID: r.SessionID,
		PlayerID:  r.PlayerID,
	})
}

func (p *player) readInput(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			p.writeMu.Lock()
			_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			p.writeMu.Unlock()
			_ = p.conn.Close()
			return
		}
		if err := p.command(line); err != nil {
			p.message(fmt.Sprintf("Error: %s", err))
		}
	}
}

func (p *player) command(line string) error {
	verb, rest, _ := strings.Cut(line, " ")

	p.mu.Lock()
	id, r := p.id, p.round
	p.mu.Unlock()
	if r == nil {
		return errors.New("no round yet")
	}

	switch verb {
	case "answer":
		parts := strings.Split(rest, ",")
		if len(parts) != 3 {
			return errors.New("usage: answer <country>, <neighbour>, <target>")
		}
		return p.send(gateway.TypeSubmitAnswer, gateway.SubmitAnswerRequest{
			SessionID:     r.SessionID,
			Country:       strings.TrimSpace(parts[0]),
			Neighbour:     strings.TrimSpace(parts[1]),
			TargetCountry: strings.TrimSpace(parts[2]),
		})
	case "finish":
		moves, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || moves < 0 {
			return errors.New("usage: finish <moves>")
		}
		return p.send(gateway.TypeRoundFinished, gateway.RoundFinishedRequest{
			SessionID: r.SessionID,
			PlayerID:  id,
			MoveCount: moves,
		})
	default:
		return fmt.Errorf("unknown command %q", verb)
	}
}

func (p *player) send(eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.WriteJSON(gateway.Message{Type: eventType, Payload: raw}); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	return nil
}

func (p *player) message(msg string) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	p.out.PrintMessage(msg)
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cursorshare/backend/internal/presence"
	"github.com/cursorshare/backend/internal/probe"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

type frame struct {
	Event presence.EventName `json:"event"`
	Data  json.RawMessage    `json:"data"`
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "Presence server WebSocket URL")
	move := flag.Bool("move", false, "Send cursor moves along a circle")
	interval := flag.Duration("interval", 100*time.Millisecond, "Move interval with -move")
	duration := flag.Duration("duration", 0, "Exit after this long (0 runs until interrupted)")
	level := flag.String("log-level", "INFO", "Log level")
	flag.Parse()

	log := logs.GetLoggerFromString(*level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		log.Error("Dial failed", "url", *url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	state := probe.NewState()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				log.Debug("Read loop ended", "error", err)
				return
			}
			var f frame
			if err := sonic.Unmarshal(raw, &f); err != nil {
				log.Warn("Undecodable frame", "error", err)
				continue
			}
			if err := state.Apply(f.Event, f.Data); err != nil {
				log.Warn("Bad event", "event", string(f.Event), "error", err)
				continue
			}
			printEvent(state, f)
		}
	}()

	moveCtx, stopMoving := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if *move {
		wg.Add(1)
		go func() {
			defer wg.Done()
			circle(moveCtx, conn, *interval)
		}()
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
	stopMoving()
	wg.Wait()

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	fmt.Println()
	state.Render(os.Stdout)
}

func printEvent(state *probe.State, f frame) {
	who := eventSubject(f)
	label := string(f.Event)
	if c := state.Color(who); c != "" {
		label = color.HEX(c).Sprint(label)
	}
	fmt.Printf("%s %s %s\n", color.Gray.Sprint(time.Now().Format("15:04:05.000")), label, string(f.Data))
}

// eventSubject extracts the participant an event is about, if any.
func eventSubject(f frame) string {
	switch f.Event {
	case presence.EventUserLeft:
		var id string
		_ = sonic.Unmarshal(f.Data, &id)
		return id
	case presence.EventExistingUsers:
		return ""
	default:
		var v struct {
			ID string `json:"id"`
		}
		_ = sonic.Unmarshal(f.Data, &v)
		return v.ID
	}
}

// circle is the only writer on conn once started.
func circle(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for step := 0; ; step++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := float64(step) / 10
			move := presence.CursorMovePayload{
				X: lo.ToPtr(400 + 150*math.Cos(t)),
				Y: lo.ToPtr(300 + 150*math.Sin(t)),
			}
			data, err := sonic.Marshal(map[string]any{"event": presence.EventCursorMove, "data": move})
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

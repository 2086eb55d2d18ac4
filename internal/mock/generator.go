// Package mock drives in-process bot participants so the board has moving
// cursors without any real clients.
package mock

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cursorshare/backend/internal/presence"
	"github.com/samber/lo"
)

// Connector attaches socketless participants to the transport.
type Connector interface {
	ConnectLocal(sink func(frame []byte)) (string, error)
	Inject(connID string, event presence.EventName, payload any) error
	Close(connID string) error
}

const (
	boardWidth  = 1280.0
	boardHeight = 720.0

	// churnEvery is how many ticks the churn bot stays before leaving and
	// coming back under a new identity.
	churnEvery = 50
)

var patterns = []string{"circle", "lissajous", "zigzag", "drift"}

type bot struct {
	id      string
	pattern string
	churn   bool
	joined  int // tick of the current identity's join
	phase   float64
	cx, cy  float64
	radius  float64
	x, y    float64
	dx, dy  float64
}

type Generator struct {
	log   *slog.Logger
	conn  Connector
	count int
	tick  time.Duration
	rng   *rand.Rand

	mu   sync.Mutex
	bots []*bot
}

// NewGenerator prepares count bots, one of which churns. tick is the move
// interval.
func NewGenerator(log *slog.Logger, conn Connector, count int, tick time.Duration) *Generator {
	return &Generator{
		log:   log,
		conn:  conn,
		count: count,
		tick:  tick,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start attaches every bot synchronously, then moves them until ctx is done.
// All bots leave when the loop stops.
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	for i := 0; i < g.count; i++ {
		b := g.newBot(i)
		if err := g.attach(b, 0); err != nil {
			g.mu.Unlock()
			g.detachAll()
			return err
		}
		g.bots = append(g.bots, b)
	}
	g.mu.Unlock()
	g.log.Info("Mock bots attached", "count", g.count)

	go g.run(ctx)
	return nil
}

// IDs returns the connection ids of the bots currently attached.
func (g *Generator) IDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo.FilterMap(g.bots, func(b *bot, _ int) (string, bool) {
		return b.id, b.id != ""
	})
}

func (g *Generator) newBot(i int) *bot {
	return &bot{
		pattern: patterns[i%len(patterns)],
		churn:   i == g.count-1 && g.count > 1,
		phase:   g.rng.Float64() * 2 * math.Pi,
		cx:      boardWidth * (0.2 + 0.6*g.rng.Float64()),
		cy:      boardHeight * (0.2 + 0.6*g.rng.Float64()),
		radius:  60 + 120*g.rng.Float64(),
		x:       boardWidth * g.rng.Float64(),
		y:       boardHeight * g.rng.Float64(),
		dx:      4 + 6*g.rng.Float64(),
		dy:      3 + 5*g.rng.Float64(),
	}
}

func (g *Generator) attach(b *bot, tick int) error {
	id, err := g.conn.ConnectLocal(nil)
	if err != nil {
		return err
	}
	b.id = id
	b.joined = tick
	return nil
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			g.detachAll()
			return
		case <-ticker.C:
			tick++
			g.step(tick)
		}
	}
}

func (g *Generator) step(tick int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, b := range g.bots {
		if b.churn && tick-b.joined >= churnEvery {
			g.rejoin(b, tick)
			continue
		}
		if b.id == "" {
			continue
		}
		x, y := b.advance(tick)
		move := presence.CursorMovePayload{X: lo.ToPtr(x), Y: lo.ToPtr(y)}
		if err := g.conn.Inject(b.id, presence.EventCursorMove, move); err != nil {
			g.log.Debug("Bot move dropped", "conn_id", b.id, "error", err)
		}
	}
}

func (g *Generator) rejoin(b *bot, tick int) {
	if b.id != "" {
		if err := g.conn.Close(b.id); err != nil {
			g.log.Debug("Closing churn bot", "conn_id", b.id, "error", err)
		}
		b.id = ""
	}
	if err := g.attach(b, tick); err != nil {
		g.log.Warn("Churn bot could not rejoin", "error", err)
		b.joined = tick
	}
}

func (g *Generator) detachAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.bots {
		if b.id == "" {
			continue
		}
		_ = g.conn.Close(b.id)
		b.id = ""
	}
}

// advance returns the bot's position for tick, always inside the board.
func (b *bot) advance(tick int) (float64, float64) {
	t := float64(tick)/20 + b.phase
	switch b.pattern {
	case "circle":
		return clampX(b.cx + b.radius*math.Cos(t)), clampY(b.cy + b.radius*math.Sin(t))
	case "lissajous":
		return clampX(b.cx + b.radius*math.Sin(3*t)), clampY(b.cy + b.radius*math.Sin(2*t))
	case "zigzag":
		span := 2 * b.radius
		leg := math.Mod(float64(tick)*b.dx, 2*span)
		if leg > span {
			leg = 2*span - leg
		}
		return clampX(b.cx - b.radius + leg), clampY(b.cy + b.radius/2*math.Copysign(1, math.Sin(t*4)))
	default:
		b.x, b.dx = bounce(b.x+b.dx, b.dx, boardWidth)
		b.y, b.dy = bounce(b.y+b.dy, b.dy, boardHeight)
		return b.x, b.y
	}
}

func bounce(pos, vel, limit float64) (float64, float64) {
	switch {
	case pos < 0:
		return -pos, -vel
	case pos > limit:
		return 2*limit - pos, -vel
	}
	return pos, vel
}

func clampX(x float64) float64 { return lo.Clamp(x, 0, boardWidth) }
func clampY(y float64) float64 { return lo.Clamp(y, 0, boardHeight) }

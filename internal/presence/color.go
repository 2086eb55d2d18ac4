package presence

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/samber/lo"
)

// ColorPolicy picks a participant's color at join time. inUse lists the
// colors of participants already live; a policy should avoid them but may
// repeat one once its choices are exhausted.
type ColorPolicy interface {
	Assign(id string, inUse []string) string
}

const (
	PolicyPalette = "palette"
	PolicyHash    = "hash"
)

var DefaultPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#42d4f4", "#f032e6",
	"#bfef45", "#fabed4", "#469990", "#dcbeff",
}

func NewColorPolicy(name string, palette []string) (ColorPolicy, error) {
	switch name {
	case "", PolicyPalette:
		if len(palette) == 0 {
			palette = DefaultPalette
		}
		return NewPalettePolicy(palette)
	case PolicyHash:
		return HashPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown color policy %q", name)
	}
}

// PalettePolicy hands out palette entries round-robin, skipping colors that
// are currently in use.
type PalettePolicy struct {
	mu      sync.Mutex
	palette []string
	next    int
}

func NewPalettePolicy(palette []string) (*PalettePolicy, error) {
	if len(palette) == 0 {
		return nil, fmt.Errorf("palette is empty")
	}
	normalized := make([]string, 0, len(palette))
	for _, hex := range palette {
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, fmt.Errorf("palette entry %q: %w", hex, err)
		}
		normalized = append(normalized, c.Hex())
	}
	return &PalettePolicy{palette: lo.Uniq(normalized)}, nil
}

func (p *PalettePolicy) Assign(_ string, inUse []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	used := lo.SliceToMap(inUse, func(c string) (string, struct{}) { return c, struct{}{} })
	n := len(p.palette)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if _, taken := used[p.palette[idx]]; !taken {
			p.next = (idx + 1) % n
			return p.palette[idx]
		}
	}
	// Every entry is taken; reuse the next one in rotation.
	c := p.palette[p.next]
	p.next = (p.next + 1) % n
	return c
}

// HashPolicy derives a stable hue from the participant id and steps around
// the color wheel by the golden angle when that hue is already taken.
type HashPolicy struct{}

const (
	goldenAngle   = 137.50776405003785
	hashSatur     = 0.70
	hashValue     = 0.95
	maxHashProbes = 16
)

func (HashPolicy) Assign(id string, inUse []string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	hue := float64(h.Sum32() % 360)

	used := lo.SliceToMap(inUse, func(c string) (string, struct{}) { return c, struct{}{} })
	first := colorful.Hsv(hue, hashSatur, hashValue).Hex()
	for i := 0; i < maxHashProbes; i++ {
		c := colorful.Hsv(math.Mod(hue+float64(i)*goldenAngle, 360), hashSatur, hashValue).Hex()
		if _, taken := used[c]; !taken {
			return c
		}
	}
	return first
}

package presence

import (
	"fmt"
	"math"

	"github.com/bytedance/sonic"
	perrors "github.com/cursorshare/backend/internal/errors"
	"github.com/cursorshare/backend/internal/session"
)

// ParseMove decodes a cursor-move payload. Both coordinates must be present,
// numeric and finite.
func ParseMove(payload []byte) (session.Position, error) {
	var move CursorMovePayload
	if err := sonic.Unmarshal(payload, &move); err != nil {
		return session.Position{}, fmt.Errorf("%w: %v", perrors.ErrInvalidMove, err)
	}
	if move.X == nil || move.Y == nil {
		return session.Position{}, fmt.Errorf("%w: missing coordinate", perrors.ErrInvalidMove)
	}
	if !isFinite(*move.X) || !isFinite(*move.Y) {
		return session.Position{}, fmt.Errorf("%w: non-finite coordinate", perrors.ErrInvalidMove)
	}
	return session.Position{X: *move.X, Y: *move.Y}, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

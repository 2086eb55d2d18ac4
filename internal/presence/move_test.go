package presence_test

import (
	"errors"
	"testing"

	perrors "github.com/cursorshare/backend/internal/errors"
	"github.com/cursorshare/backend/internal/presence"
	"github.com/cursorshare/backend/internal/session"
	"github.com/stretchr/testify/require"
)

func TestParseMove(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    session.Position
		wantErr bool
	}{
		{name: "integers", payload: `{"x":10,"y":20}`, want: session.Position{X: 10, Y: 20}},
		{name: "floats", payload: `{"x":-1.5,"y":3.25}`, want: session.Position{X: -1.5, Y: 3.25}},
		{name: "zero", payload: `{"x":0,"y":0}`, want: session.Position{}},
		{name: "extra fields", payload: `{"x":1,"y":2,"z":3}`, want: session.Position{X: 1, Y: 2}},
		{name: "string coordinate", payload: `{"x":"abc","y":20}`, wantErr: true},
		{name: "numeric string", payload: `{"x":"10","y":20}`, wantErr: true},
		{name: "missing y", payload: `{"x":1}`, wantErr: true},
		{name: "null coordinate", payload: `{"x":null,"y":1}`, wantErr: true},
		{name: "null payload", payload: `null`, wantErr: true},
		{name: "array", payload: `[1,2]`, wantErr: true},
		{name: "garbage", payload: `}{`, wantErr: true},
		{name: "empty", payload: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := presence.ParseMove([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, perrors.ErrInvalidMove))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

package prompt

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/migrate"
	"github.com/lherron/chatmig/internal/rollback"
)

var (
	_ migrate.DuplicatePolicy = (*Terminal)(nil)
	_ rollback.Confirmer      = (*Terminal)(nil)
)

func TestOnDuplicate(t *testing.T) {
	tests := []struct {
		input string
		want  domain.Policy
	}{
		{"m\n", domain.PolicyMigrateAnyway},
		{"S\n", domain.PolicySkip},
		{"what\nmigrate\n", domain.PolicyMigrateAnyway},
		{"s", domain.PolicySkip},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := New(strings.NewReader(tt.input), &out).OnDuplicate(context.Background(), "Project X")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Project X")
		})
	}
}

func TestOnDuplicateEndOfInput(t *testing.T) {
	var out bytes.Buffer
	_, err := New(strings.NewReader("x\n"), &out).OnDuplicate(context.Background(), "Project X")
	assert.ErrorIs(t, err, ErrNoAnswer)
	assert.Contains(t, out.String(), `Unrecognized answer "x"`)
}

func TestOnDuplicateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(strings.NewReader("m\n"), &bytes.Buffer{}).OnDuplicate(ctx, "Project X")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfirmLeave(t *testing.T) {
	rooms := []journal.Room{{ID: "R1", Title: "Project X"}, {ID: "R2", Title: "Ops"}}

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := New(strings.NewReader(tt.input), &out).ConfirmLeave(context.Background(), "archiver@example.com", rooms)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "2 room(s)")
		assert.Contains(t, out.String(), "Ops")
		assert.Contains(t, out.String(), "archiver@example.com")
	}
}

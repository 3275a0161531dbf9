package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ slog.Handler }

func (failingSink) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func textSink(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestMultiHandler_Routing(t *testing.T) {
	tests := []struct {
		name      string
		log       func(*slog.Logger)
		wantFile  []string
		wantDebug []string
	}{
		{
			name:      "info reaches both sinks",
			log:       func(l *slog.Logger) { l.Info("pass done", "overlays", 4) },
			wantFile:  []string{"pass done", "overlays=4"},
			wantDebug: []string{"pass done"},
		},
		{
			name:      "debug skips the info sink",
			log:       func(l *slog.Logger) { l.Debug("diff computed") },
			wantDebug: []string{"diff computed"},
		},
		{
			name:      "attrs are kept per sink",
			log:       func(l *slog.Logger) { l.With("tokenId", "t1").Info("tracker added") },
			wantFile:  []string{"tokenId=t1"},
			wantDebug: []string{"tokenId=t1"},
		},
		{
			name:      "groups prefix keys",
			log:       func(l *slog.Logger) { l.WithGroup("scene").Info("ready", "grid", 150) },
			wantFile:  []string{"scene.grid=150"},
			wantDebug: []string{"scene.grid=150"},
		},
		{
			name:      "empty group is ignored",
			log:       func(l *slog.Logger) { l.WithGroup("").Info("plain", "k", "v") },
			wantFile:  []string{" k=v"},
			wantDebug: []string{" k=v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var file, debug bytes.Buffer
			h := NewMultiHandler(textSink(&file, slog.LevelInfo), nil, textSink(&debug, slog.LevelDebug))
			tt.log(slog.New(h))

			if len(tt.wantFile) == 0 {
				assert.Empty(t, file.String())
			}
			for _, s := range tt.wantFile {
				assert.Contains(t, file.String(), s)
			}
			for _, s := range tt.wantDebug {
				assert.Contains(t, debug.String(), s)
			}
		})
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	assert.False(t, NewMultiHandler().Enabled(ctx, slog.LevelError))
	assert.False(t, NewMultiHandler(nil, nil).Enabled(ctx, slog.LevelError))

	h := NewMultiHandler(textSink(&buf, slog.LevelWarn))
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
}

func TestMultiHandler_FailingSink(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiHandler(failingSink{textSink(&buf, slog.LevelInfo)}, textSink(&buf, slog.LevelInfo))

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "export written", 0)
	err := h.Handle(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, 1, strings.Count(buf.String(), "export written"))
}

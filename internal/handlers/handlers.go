// Package handlers implements the commands the tracker UI sends to the
// engine. Tracker edits go through a tracker.Store whose save location
// writes the token metadata back to the scene backend.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/owltrackers/extension/internal/dispatcher"
	"github.com/owltrackers/extension/internal/logging"
	"github.com/owltrackers/extension/internal/parser"
	"github.com/owltrackers/extension/internal/storage"
	"github.com/owltrackers/extension/internal/tracker"
	"github.com/owltrackers/extension/pkg/core"
)

var (
	// ErrNotGM is returned when a player sends a GM-only command
	ErrNotGM = errors.New("command requires the GM role")
	// ErrTrackerLimit is returned when a token already holds MaxTrackerCount trackers
	ErrTrackerLimit = errors.New("tracker limit reached")
)

// UI commands
const (
	CmdTrackerAdd        = ":TRACKER:ADD:"
	CmdTrackerUpdate     = ":TRACKER:UPDATE:"
	CmdTrackerDelete     = ":TRACKER:DELETE:"
	CmdTrackerToggleMap  = ":TRACKER:TOGGLE:MAP:"
	CmdTrackerToggleMath = ":TRACKER:TOGGLE:MATH:"
	CmdTrackerHide       = ":TRACKER:HIDE:"
	CmdSettingsSet       = ":SETTINGS:SET:"
	CmdSettingsGet       = ":SETTINGS:GET:"
	CmdSegmentsSet       = ":SEGMENTS:SET:"
)

// DefaultTimeout bounds every backend round trip of one command
const DefaultTimeout = 10 * time.Second

// Dependencies holds all dependencies for the command service
type Dependencies struct {
	Backend    storage.Backend
	Parser     *parser.Parser
	LogManager *logging.SlogManager
	Timeout    time.Duration
}

// SettingsView is the result of :SETTINGS:GET:
type SettingsView struct {
	Settings core.Settings        `json:"settings"`
	Segments core.SegmentSettings `json:"segments"`
}

// Service handles UI commands
type Service struct {
	deps Dependencies
}

// NewService creates a new command service
func NewService(deps Dependencies) *Service {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(nil, "")
	}
	return &Service{deps: deps}
}

// RegisterHandlers registers every UI command. The handlers are not serial:
// their backend writes trigger scene notifications that the sync worker
// handles under the serial lock.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdTrackerAdd, s.handleTrackerAdd, dispatcher.Logged())
	d.Register(CmdTrackerUpdate, s.handleTrackerUpdate, dispatcher.Logged())
	d.Register(CmdTrackerDelete, s.handleTrackerDelete, dispatcher.Logged())
	d.Register(CmdTrackerToggleMap, s.handleToggleShowOnMap, dispatcher.Logged())
	d.Register(CmdTrackerToggleMath, s.handleToggleInlineMath, dispatcher.Logged())
	d.Register(CmdTrackerHide, s.handleHide, dispatcher.Logged())
	d.Register(CmdSettingsSet, s.handleSettingsSet, dispatcher.Logged())
	d.Register(CmdSettingsGet, s.handleSettingsGet, dispatcher.Logged())
	d.Register(CmdSegmentsSet, s.handleSegmentsSet, dispatcher.Logged())
}

func (s *Service) writeLog(functionName, data, level string) {
	if s.deps.LogManager != nil {
		s.deps.LogManager.WriteLog(functionName, data, level)
	}
}

func (s *Service) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.deps.Timeout)
}

// Store loads a token's trackers into a store that saves back to the token
func (s *Service) Store(ctx context.Context, tokenID string) (*tracker.Store, error) {
	tokens, err := s.deps.Backend.Tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading tokens: %w", err)
	}

	var (
		tok   core.Token
		found bool
	)
	for _, t := range tokens {
		if t.ID == tokenID {
			tok, found = t, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", storage.ErrTokenNotFound, tokenID)
	}

	key := s.deps.Parser.Key(core.TrackerMetadataID)
	store := tracker.NewStore()
	store.SetTrackers(s.deps.Parser.TokenTrackers(tok))
	store.SetSaveLocation(func(ctx context.Context, trackers []core.Tracker) error {
		encoded, err := core.EncodeTrackers(trackers)
		if err != nil {
			return err
		}
		return s.deps.Backend.UpdateTokenMetadata(ctx, tokenID, core.Metadata{key: encoded})
	})
	return store, nil
}

func (s *Service) requireGM(ctx context.Context) error {
	role, err := s.deps.Backend.Role(ctx)
	if err != nil {
		return fmt.Errorf("reading role: %w", err)
	}
	if role != core.RoleGM {
		return ErrNotGM
	}
	return nil
}

func (s *Service) handleTrackerAdd(e dispatcher.Event) (any, error) {
	tokenID, variant, err := s.deps.Parser.ParseTrackerAdd(e.Args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	store, err := s.Store(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	before := len(store.Trackers())
	// a full list is left as is but still saved
	if err := store.Add(ctx, variant); err != nil {
		return nil, err
	}

	trackers := store.Trackers()
	if len(trackers) == before {
		return nil, fmt.Errorf("token %s: %w", tokenID, ErrTrackerLimit)
	}
	added := trackers[len(trackers)-1]
	s.writeLog("handleTrackerAdd", fmt.Sprintf("Added %s tracker %s to %s", variant, added.ID, tokenID), "DEBUG")
	return added, nil
}

func (s *Service) handleTrackerUpdate(e dispatcher.Event) (any, error) {
	cmd, err := s.deps.Parser.ParseTrackerUpdate(e.Args)
	if err != nil {
		return nil, err
	}
	return s.withStore(cmd.TokenID, func(ctx context.Context, store *tracker.Store) error {
		return store.UpdateField(ctx, cmd.TrackerID, cmd.Field, cmd.Content)
	})
}

func (s *Service) handleTrackerDelete(e dispatcher.Event) (any, error) {
	cmd, err := s.deps.Parser.ParseTrackerCommand(e.Args)
	if err != nil {
		return nil, err
	}
	return s.withStore(cmd.TokenID, func(ctx context.Context, store *tracker.Store) error {
		return store.Delete(ctx, cmd.TrackerID)
	})
}

func (s *Service) handleToggleShowOnMap(e dispatcher.Event) (any, error) {
	cmd, err := s.deps.Parser.ParseTrackerCommand(e.Args)
	if err != nil {
		return nil, err
	}
	return s.withStore(cmd.TokenID, func(ctx context.Context, store *tracker.Store) error {
		return store.ToggleShowOnMap(ctx, cmd.TrackerID)
	})
}

func (s *Service) handleToggleInlineMath(e dispatcher.Event) (any, error) {
	cmd, err := s.deps.Parser.ParseTrackerCommand(e.Args)
	if err != nil {
		return nil, err
	}
	return s.withStore(cmd.TokenID, func(ctx context.Context, store *tracker.Store) error {
		return store.ToggleInlineMath(ctx, cmd.TrackerID)
	})
}

// withStore runs fn against the token's store and returns the resulting list
func (s *Service) withStore(tokenID string, fn func(context.Context, *tracker.Store) error) (any, error) {
	ctx, cancel := s.commandContext()
	defer cancel()

	store, err := s.Store(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, store); err != nil {
		return nil, err
	}
	return store.Trackers(), nil
}

func (s *Service) handleHide(e dispatcher.Event) (any, error) {
	tokenID, hidden, err := s.deps.Parser.ParseHide(e.Args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	if err := s.requireGM(ctx); err != nil {
		return nil, err
	}
	key := s.deps.Parser.Key(core.HiddenMetadataID)
	if err := s.deps.Backend.UpdateTokenMetadata(ctx, tokenID, core.Metadata{key: hidden}); err != nil {
		return nil, err
	}
	return hidden, nil
}

func (s *Service) handleSettingsSet(e dispatcher.Event) (any, error) {
	partial, err := s.deps.Parser.ParseSettingSet(e.Args)
	if err != nil {
		return nil, err
	}
	return nil, s.setSceneMetadata(partial)
}

func (s *Service) handleSegmentsSet(e dispatcher.Event) (any, error) {
	partial, err := s.deps.Parser.ParseSegmentsSet(e.Args)
	if err != nil {
		return nil, err
	}
	return nil, s.setSceneMetadata(partial)
}

func (s *Service) setSceneMetadata(partial core.Metadata) error {
	ctx, cancel := s.commandContext()
	defer cancel()

	if err := s.requireGM(ctx); err != nil {
		return err
	}
	if err := s.deps.Backend.SetSceneMetadata(ctx, partial); err != nil {
		return fmt.Errorf("writing scene settings: %w", err)
	}
	return nil
}

func (s *Service) handleSettingsGet(e dispatcher.Event) (any, error) {
	ctx, cancel := s.commandContext()
	defer cancel()

	meta, err := s.deps.Backend.SceneMetadata(ctx)
	if err != nil {
		return nil, err
	}
	segments, ok := s.deps.Parser.ParseSegmentSettings(meta)
	if !ok {
		segments = core.SegmentSettings{}
	}
	return SettingsView{
		Settings: s.deps.Parser.ParseSettings(meta),
		Segments: segments,
	}, nil
}

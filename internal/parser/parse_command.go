package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/owltrackers/extension/pkg/core"
)

// ErrArgCount is returned when a command has too few arguments
var ErrArgCount = errors.New("wrong argument count")

// TrackerCommand addresses a tracker on a token
type TrackerCommand struct {
	TokenID   string
	TrackerID string
	Field     string
	Content   string
}

// ParseTrackerCommand parses [tokenId, trackerId, field?, content?]
func (p *Parser) ParseTrackerCommand(data []string) (TrackerCommand, error) {
	var cmd TrackerCommand
	if len(data) < 2 {
		return cmd, fmt.Errorf("tracker command: %w: got %d, want at least 2", ErrArgCount, len(data))
	}
	data = cleanArgs(data)

	cmd.TokenID = data[0]
	cmd.TrackerID = data[1]
	if len(data) > 2 {
		cmd.Field = data[2]
	}
	if len(data) > 3 {
		cmd.Content = data[3]
	}
	if cmd.TokenID == "" {
		return cmd, errors.New("tracker command: empty token id")
	}
	return cmd, nil
}

// ParseTrackerUpdate parses [tokenId, trackerId, field, content]
func (p *Parser) ParseTrackerUpdate(data []string) (TrackerCommand, error) {
	if len(data) != 4 {
		return TrackerCommand{}, fmt.Errorf("tracker update: %w: got %d, want 4", ErrArgCount, len(data))
	}
	return p.ParseTrackerCommand(data)
}

// ParseTrackerAdd parses [tokenId, variant]
func (p *Parser) ParseTrackerAdd(data []string) (string, core.Variant, error) {
	if len(data) != 2 {
		return "", "", fmt.Errorf("tracker add: %w: got %d, want 2", ErrArgCount, len(data))
	}
	data = cleanArgs(data)

	variant := core.Variant(data[1])
	switch variant {
	case core.VariantValue, core.VariantValueMax, core.VariantCheckbox, core.VariantCounter:
	default:
		return "", "", fmt.Errorf("tracker add: unknown variant %q", data[1])
	}
	return data[0], variant, nil
}

// ParseHide parses [tokenId, hidden]
func (p *Parser) ParseHide(data []string) (string, bool, error) {
	if len(data) != 2 {
		return "", false, fmt.Errorf("hide: %w: got %d, want 2", ErrArgCount, len(data))
	}
	data = cleanArgs(data)

	hidden, err := strconv.ParseBool(data[1])
	if err != nil {
		return "", false, fmt.Errorf("hide: error parsing flag: %w", err)
	}
	return data[0], hidden, nil
}

var numericSettings = map[string]bool{
	core.VerticalOffsetKey: true,
	core.BaseBarHeightKey:  true,
	core.BubbleDiameterKey: true,
}

var boolSettings = map[string]bool{
	core.TrackersAboveTokenKey: true,
	core.BarHeightReducedKey:   true,
	core.SegmentsEnabledKey:    true,
}

// ParseSettingSet parses [key, jsonValue] into a namespaced partial scene
// metadata update. Numbers and booleans are type checked against the key.
func (p *Parser) ParseSettingSet(data []string) (core.Metadata, error) {
	if len(data) != 2 {
		return nil, fmt.Errorf("setting: %w: got %d, want 2", ErrArgCount, len(data))
	}
	key := cleanArg(data[0])

	var value any
	if err := json.Unmarshal([]byte(cleanArg(data[1])), &value); err != nil {
		return nil, fmt.Errorf("setting %q: error unmarshalling value: %w", key, err)
	}

	switch {
	case numericSettings[key]:
		f, ok := value.(float64)
		if !ok || math.IsNaN(f) {
			return nil, fmt.Errorf("setting %q: expected number, got %T", key, value)
		}
		if key != core.VerticalOffsetKey && f < 0 {
			return nil, fmt.Errorf("setting %q: must not be negative", key)
		}
	case boolSettings[key]:
		if _, ok := value.(bool); !ok {
			return nil, fmt.Errorf("setting %q: expected boolean, got %T", key, value)
		}
	default:
		return nil, fmt.Errorf("setting %q: unknown key", key)
	}

	return core.Metadata{p.Key(key): value}, nil
}

// ParseSegmentsSet parses [jsonList] where the list holds [name, count]
// pairs. Counts go through ParseNumber with a lower bound of 0.
func (p *Parser) ParseSegmentsSet(data []string) (core.Metadata, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("segments: %w: got %d, want 1", ErrArgCount, len(data))
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal([]byte(cleanArg(data[0])), &pairs); err != nil {
		return nil, fmt.Errorf("segments: error unmarshalling list: %w", err)
	}

	names := make([]string, 0, len(pairs))
	settings := make(core.SegmentSettings, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("segments: entry %d: want [name, count]", i)
		}
		var name string
		if err := json.Unmarshal(pair[0], &name); err != nil {
			return nil, fmt.Errorf("segments: entry %d: error parsing name: %w", i, err)
		}
		var count float64
		var content string
		if err := json.Unmarshal(pair[1], &content); err == nil {
			count = ParseNumber(content, 0, false, MinBound(0))
		} else if err := json.Unmarshal(pair[1], &count); err != nil {
			return nil, fmt.Errorf("segments: entry %d: error parsing count: %w", i, err)
		}
		if _, dup := settings[name]; !dup {
			names = append(names, name)
		}
		settings[name] = int(MinBound(0).Clamp(math.Trunc(count)))
	}

	return core.Metadata{p.Key(core.SegmentSettingsKey): EncodeSegmentSettings(names, settings)}, nil
}

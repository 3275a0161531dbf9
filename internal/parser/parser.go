package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/owltrackers/extension/internal/util"
	"github.com/owltrackers/extension/pkg/core"
)

// parseIntFromFloat parses a string that may be an integer ("3") or float ("3.00") into int64.
// Host UIs serialize every number as a float.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// ParseColor parses a palette index. Indices wrap into the palette.
func ParseColor(s string) (int, error) {
	v, err := parseIntFromFloat(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("error parsing color: %w", err)
	}
	return int(v), nil
}

// Parser converts host metadata and UI command arguments into core types.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger   *slog.Logger
	pluginID string
}

// NewParser creates a parser that reads keys namespaced under pluginID.
// A nil logger falls back to slog.Default().
func NewParser(logger *slog.Logger, pluginID string) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:   logger,
		pluginID: pluginID,
	}
}

// PluginID returns the metadata namespace
func (p *Parser) PluginID() string {
	return p.pluginID
}

// Key namespaces a metadata key
func (p *Parser) Key(key string) string {
	return core.PluginKey(p.pluginID, key)
}

// ReadNumber returns the numeric value stored under key, or 0 when absent,
// not a number, or NaN.
func (p *Parser) ReadNumber(meta core.Metadata, key string) float64 {
	switch v := meta[p.Key(key)].(type) {
	case float64:
		if math.IsNaN(v) {
			return 0
		}
		return v
	case json.Number:
		f, err := v.Float64()
		if err != nil || math.IsNaN(f) {
			return 0
		}
		return f
	case int:
		return float64(v)
	default:
		return 0
	}
}

// ReadBool returns the boolean stored under key, or false
func (p *Parser) ReadBool(meta core.Metadata, key string) bool {
	v, ok := meta[p.Key(key)].(bool)
	return ok && v
}

// ParseSettings reads the scene-wide layout settings. Zero base sizes fall
// back to their defaults.
func (p *Parser) ParseSettings(meta core.Metadata) core.Settings {
	s := core.Settings{
		VerticalOffset:     p.ReadNumber(meta, core.VerticalOffsetKey),
		TrackersAboveToken: p.ReadBool(meta, core.TrackersAboveTokenKey),
		BarHeightIsReduced: p.ReadBool(meta, core.BarHeightReducedKey),
		BaseBarHeight:      p.ReadNumber(meta, core.BaseBarHeightKey),
		BaseBubbleDiameter: p.ReadNumber(meta, core.BubbleDiameterKey),
		SegmentsEnabled:    p.ReadBool(meta, core.SegmentsEnabledKey),
	}
	if s.BaseBarHeight == 0 {
		s.BaseBarHeight = core.DefaultBarHeight
	}
	if s.BaseBubbleDiameter == 0 {
		s.BaseBubbleDiameter = core.DefaultBubbleDiameter
	}
	return s
}

// ParseSegmentSettings reads the [[name, count], ...] list. The second
// return is false when the key is absent, so callers can keep their
// previous settings.
func (p *Parser) ParseSegmentSettings(meta core.Metadata) (core.SegmentSettings, bool) {
	raw, present := meta[p.Key(core.SegmentSettingsKey)]
	if !present || raw == nil {
		return nil, false
	}

	list, ok := raw.([]any)
	if !ok {
		p.logger.Warn("Ignoring malformed segment settings", "value", raw)
		return nil, false
	}

	out := make(core.SegmentSettings, len(list))
	for _, entry := range list {
		pair, ok := entry.([]any)
		if !ok || len(pair) != 2 {
			p.logger.Warn("Skipping malformed segment setting", "entry", entry)
			continue
		}
		name, ok := pair[0].(string)
		if !ok {
			continue
		}
		count, ok := pair[1].(float64)
		if !ok || math.IsNaN(count) || math.IsInf(count, 0) || count < 0 || count != math.Trunc(count) {
			p.logger.Warn("Skipping invalid segment count", "name", name, "count", pair[1])
			continue
		}
		out[name] = int(count)
	}
	return out, true
}

// EncodeSegmentSettings converts segment settings into the persisted pair list
func EncodeSegmentSettings(names []string, settings core.SegmentSettings) []any {
	out := make([]any, 0, len(names))
	for _, name := range names {
		count, ok := settings[name]
		if !ok {
			continue
		}
		out = append(out, []any{name, float64(count)})
	}
	return out
}

// TokenTrackers returns the validated tracker list of a token
func (p *Parser) TokenTrackers(token core.Token) []core.Tracker {
	return core.DecodeTrackers(token.Metadata[p.Key(core.TrackerMetadataID)])
}

// TokenHidden reports whether the token's trackers are hidden from players
func (p *Parser) TokenHidden(token core.Token) bool {
	hidden, ok := token.Metadata[p.Key(core.HiddenMetadataID)].(bool)
	return ok && hidden
}

// cleanArg strips host quoting from a command argument
func cleanArg(s string) string {
	return util.FixEscapeQuotes(util.TrimQuotes(strings.TrimSpace(s)))
}

func cleanArgs(data []string) []string {
	out := make([]string, len(data))
	for i, v := range data {
		out[i] = cleanArg(v)
	}
	return out
}

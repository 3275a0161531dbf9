// Package overlay compiles a token's trackers into scene overlay primitives.
package overlay

import (
	"strconv"

	"github.com/owltrackers/extension/pkg/core"
)

// HideLabel names the hidden indicator image bubble
const HideLabel = "hide"

func slotID(tokenID string, slot int, suffix string) string {
	return tokenID + "-" + strconv.Itoa(slot) + "-" + suffix
}

// BarBackgroundID, BarFillID and BarTextID identify the parts of a bar slot
func BarBackgroundID(tokenID string, slot int) string { return slotID(tokenID, slot, "bar-bg") }
func BarFillID(tokenID string, slot int) string       { return slotID(tokenID, slot, "bar-fill") }
func BarTextID(tokenID string, slot int) string       { return slotID(tokenID, slot, "bar-text") }

// BubbleBackgroundID and BubbleTextID identify the parts of a bubble slot
func BubbleBackgroundID(tokenID string, slot int) string { return slotID(tokenID, slot, "bubble-bg") }
func BubbleTextID(tokenID string, slot int) string       { return slotID(tokenID, slot, "bubble-text") }

// ImageBackgroundID and ImageID identify the parts of a labelled image bubble
func ImageBackgroundID(tokenID, label string) string { return tokenID + "-" + label + "-img-bg" }
func ImageID(tokenID, label string) string           { return tokenID + "-" + label + "-img" }

// BarIDs lists every overlay id of a bar slot
func BarIDs(tokenID string, slot int) []string {
	return []string{
		BarBackgroundID(tokenID, slot),
		BarFillID(tokenID, slot),
		BarTextID(tokenID, slot),
	}
}

// BubbleIDs lists every overlay id of a bubble slot
func BubbleIDs(tokenID string, slot int) []string {
	return []string{
		BubbleBackgroundID(tokenID, slot),
		BubbleTextID(tokenID, slot),
	}
}

// ImageIDs lists every overlay id of a labelled image bubble
func ImageIDs(tokenID, label string) []string {
	return []string{
		ImageBackgroundID(tokenID, label),
		ImageID(tokenID, label),
	}
}

// BarTextIDs lists the bar text id of every slot
func BarTextIDs(tokenID string) []string {
	ids := make([]string, 0, core.MaxTrackerCount)
	for i := 0; i < core.MaxTrackerCount; i++ {
		ids = append(ids, BarTextID(tokenID, i))
	}
	return ids
}

// AllIDs lists every overlay id the compiler can produce for a token
func AllIDs(tokenID string) []string {
	ids := make([]string, 0, core.MaxTrackerCount*5+2)
	for i := 0; i < core.MaxTrackerCount; i++ {
		ids = append(ids, BarIDs(tokenID, i)...)
	}
	for i := 0; i < core.MaxTrackerCount; i++ {
		ids = append(ids, BubbleIDs(tokenID, i)...)
	}
	return append(ids, ImageIDs(tokenID, HideLabel)...)
}

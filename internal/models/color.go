package models

// Color is one of the eleven destination palette colors.
type Color string

const (
	ColorLavender  Color = "lavender"
	ColorSage      Color = "sage"
	ColorGrape     Color = "grape"
	ColorTangerine Color = "tangerine"
	ColorBanana    Color = "banana"
	ColorFlamingo  Color = "flamingo"
	ColorPeacock   Color = "peacock"
	ColorGraphite  Color = "graphite"
	ColorBlueberry Color = "blueberry"
	ColorBasil     Color = "basil"
	ColorTomato    Color = "tomato"
)

// Palette lists the colors in provider id order (lavender is "1").
var Palette = []Color{
	ColorLavender,
	ColorSage,
	ColorGrape,
	ColorTangerine,
	ColorBanana,
	ColorFlamingo,
	ColorPeacock,
	ColorGraphite,
	ColorBlueberry,
	ColorBasil,
	ColorTomato,
}

var colorIDs = map[Color]string{
	ColorLavender:  "1",
	ColorSage:      "2",
	ColorGrape:     "3",
	ColorTangerine: "4",
	ColorBanana:    "5",
	ColorFlamingo:  "6",
	ColorPeacock:   "7",
	ColorGraphite:  "8",
	ColorBlueberry: "9",
	ColorBasil:     "10",
	ColorTomato:    "11",
}

// IsValid reports whether c belongs to the palette.
func (c Color) IsValid() bool {
	_, ok := colorIDs[c]
	return ok
}

// ID returns the provider color id, or "" for an unknown color.
func (c Color) ID() string {
	return colorIDs[c]
}

// ColorFromID is the inverse of Color.ID.
func ColorFromID(id string) (Color, bool) {
	for c, cid := range colorIDs {
		if cid == id {
			return c, true
		}
	}
	return "", false
}

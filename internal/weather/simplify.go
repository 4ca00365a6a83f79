package weather

import (
	"strings"
)

// maxDisplayChars is the width budget of the condition line on the round
// display.
const maxDisplayChars = 14

// modifiers recognized in forecast text, matched by earliest position.
var modifiers = []string{
	"Slight Chance", "Light", "Chance", "Mostly", "Partly", "Partial",
	"Shallow", "Patches", "Patchy", "Likely", "Heavy", "Scattered",
	"Isolated", "Drifting", "Blowing", "Few", "Broken", "Widespread",
	"Frequent", "Gust", "Gusty", "Intermittent", "Increasing", "Occasional",
	"Variable",
}

// conditions in priority order. Lower index wins when several appear in
// the same forecast string.
var conditions = []string{
	"Tornado", "Funnel Cloud", "Hailstorm", "Hailstorms", "Blizzard", "Winter Storm", "Winter Weather",
	"Freezing Rain", "Freezing Drizzle", "Hail", "Sleet", "Ice", "Frost",
	"Flash Flood", "Flood", "Dust Storm", "Smoke", "Volcanic Ash", "Dust", "Spray", "Sand",
	"Hurricane", "Tropical Storm", "Thunderstorms", "Sandstorm",
	"Thunderstorm", "T-storms", "Tstorms", "Lightning",
	"Storm", "Squall", "Showers", "Rain", "Precipitation",
	"Fog", "Snow", "Clear", "Sunny",
	"Cloudy", "Overcast", "Windy", "Gusty", "Wind", "Drizzle",
	"Haze", "Mist", "Snow Grains", "Ice Crystals", "Ice Pellets", "Snow Pellets",
}

// modifierAbbrev shortens modifiers to six characters or less so they
// pair with an abbreviated condition inside the width budget.
var modifierAbbrev = map[string]string{
	"isolated":      "Isol",
	"slight chance": "Chance",
	"scattered":     "Scattr",
	"partial":       "Prtial",
	"shallow":       "Shllow",
	"patches":       "Patchy",
	"drifting":      "Drftng",
	"blowing":       "Blowng",
	"widespread":    "Wdsprd",
	"frequent":      "Frqunt",
	"intermittent":  "Intmit",
	"increasing":    "Increa",
	"occasional":    "Occasl",
	"variable":      "Variab",
}

// conditionAbbrev shortens conditions to seven characters or less. Only
// applied when a modifier shares the line.
var conditionAbbrev = map[string]string{
	"hailstorm":        "Hailstrm",
	"hailstorms":       "Hailstrm",
	"blizzard":         "Blizzrd",
	"winter storm":     "Win Stm",
	"winter weather":   "Win Weth",
	"freezing rain":    "Fr Rain",
	"freezing drizzle": "Fr Drzl",
	"flash flood":      "Fl Flood",
	"dust storm":       "Dust St",
	"volcanic ash":     "Volc Ash",
	"hurricane":        "Hurrcan",
	"tropical storm":   "Trop St",
	"thunderstorm":     "Tstorms",
	"thunderstorms":    "Tstorms",
	"t-storms":         "Tstorms",
	"precipitation":    "Precip",
	"funnel cloud":     "FunlCld",
	"sandstorm":        "SndStrm",
	"snow grains":      "Snw Grs",
	"ice crystals":     "Ice Xtl",
	"ice pellets":      "Ice Plt",
	"snow pellets":     "Snw Plt",
	"overcast":         "Ovrcast",
	"lightning":        "Lightng",
}

// SplitForecast divides a forecast string at the first " then " so the
// display can show the current condition first and the followup after.
func SplitForecast(text string) (first, then string) {
	if text == "" {
		return "", ""
	}
	idx := strings.Index(strings.ToLower(text), " then ")
	if idx < 0 {
		return strings.TrimSpace(text), ""
	}
	return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+len(" then "):])
}

// ShortenPeriodName fits a forecast period label into the display width.
// Known holidays and "<Day> Night" names get dedicated short forms.
func ShortenPeriodName(name string) string {
	if name == "" {
		return ""
	}
	name = strings.TrimSpace(name)

	holidayMap := map[string]string{
		"Thanksgiving Day":           "Thanksgiving",
		"Christmas Day":              "Christmas",
		"Christmas Night":            "Xmas Night",
		"New Year's Day":             "New Year",
		"New Year's Night":           "New Year Night",
		"Independence Day":           "July 4",
		"Washington's Birthday":      "Presidents",
		"Martin Luther King Jr. Day": "MLK Day",
	}
	if short, ok := holidayMap[name]; ok {
		return short
	}

	if parts := strings.Fields(name); len(parts) == 2 && parts[1] == "Night" {
		day := parts[0]
		if len(day) > 3 {
			day = day[:3]
		}
		return day + " Night"
	}

	if len(name) > maxDisplayChars {
		return name[:maxDisplayChars]
	}
	return name
}

// Simplify condenses a forecast string to "<modifier> <condition>" within
// the display width. The string is cut at the first separator so only the
// leading condition is described; the highest-priority recognized
// condition wins, paired with the earliest modifier.
func Simplify(forecast string) string {
	if strings.TrimSpace(forecast) == "" {
		return "No Forecast"
	}

	lower := strings.ToLower(forecast)
	for _, sep := range []string{" then ", ";", ","} {
		if idx := strings.Index(lower, sep); idx >= 0 {
			lower = lower[:idx]
			break
		}
	}
	lower = strings.TrimSpace(lower)

	foundModifier := ""
	modifierPos := -1
	for _, mod := range modifiers {
		if pos := strings.Index(lower, strings.ToLower(mod)); pos >= 0 {
			if modifierPos < 0 || pos < modifierPos {
				modifierPos = pos
				foundModifier = mod
			}
		}
	}

	foundCondition := ""
	for _, cond := range conditions {
		if strings.Contains(lower, strings.ToLower(cond)) {
			foundCondition = cond
			break
		}
	}

	if foundModifier == "" {
		if strings.EqualFold(foundCondition, "Freezing Drizzle") {
			foundCondition = "Frzing Drizzle"
		}
	} else {
		if abbrev, ok := modifierAbbrev[strings.ToLower(foundModifier)]; ok {
			foundModifier = abbrev
		}
		if abbrev, ok := conditionAbbrev[strings.ToLower(foundCondition)]; ok {
			foundCondition = abbrev
		}
	}

	phrase := strings.TrimSpace(foundModifier + " " + foundCondition)
	if phrase == "" {
		// No recognized vocabulary; fall back to truncating the raw text.
		s := lower
		if len(s) > maxDisplayChars {
			s = s[:maxDisplayChars]
		}
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}

	if len(phrase) > maxDisplayChars {
		phrase = phrase[:maxDisplayChars]
	}
	return phrase
}

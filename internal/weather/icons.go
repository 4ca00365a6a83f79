package weather

import "strings"

// iconRule maps recognized terms to an icon asset. Rules are evaluated in
// order; severe weather outranks sky conditions. Day/night variants use
// the nightIcon when set and the period is not daytime.
type iconRule struct {
	terms     []string
	icon      string
	nightIcon string
}

var iconRules = []iconRule{
	{terms: []string{"tornado", "funnel cloud", "funlcld"}, icon: "tornado"},
	{terms: []string{"hurricane", "hurrcan"}, icon: "hurricane"},
	{terms: []string{"tropical storm", "trop st"}, icon: "trop_storm"},
	{terms: []string{"winter storm", "win stm", "blizzard", "blizzrd"}, icon: "winter_storm"},
	{terms: []string{"thunderstorm", "t-storm", "tstorms", "storm", "squall", "lightning", "lightng"}, icon: "tstorm"},
	{terms: []string{"snow", "winter weather", "win weth", "frost"}, icon: "snow"},
	{terms: []string{"sleet", "hail", "ice", "snow grains", "snw grs", "ice pellets", "ice plt",
		"ice crystals", "ice xtl", "snow pellets", "snw plt", "freezing rain", "fr rain",
		"freezing drizzle", "fr drzl", "frzing drizzle"}, icon: "hail"},
	{terms: []string{"rain", "showers", "drizzle", "precipitation", "precip", "mist", "spray"}, icon: "rain"},
	{terms: []string{"flash flood", "fl flood", "flood"}, icon: "flood"},
	{terms: []string{"fog"}, icon: "fog"},
	{terms: []string{"haze", "smoke"}, icon: "smoke"},
	{terms: []string{"dust", "sand", "volcanic ash", "volc ash", "ash", "sndstrm"}, icon: "sand"},
	{terms: []string{"wind", "windy", "gust", "gusty", "blowing", "blowng", "drifting", "drftng"}, icon: "windy"},
	{terms: []string{"partly sunny", "partly clear", "p sunny", "p clear"}, icon: "part_cloudy_day", nightIcon: "part_cloudy_night"},
	{terms: []string{"mostly sunny", "m sunny", "mostly clear", "m clear"}, icon: "clear_day", nightIcon: "clear_night"},
	{terms: []string{"partly cloudy", "p cloudy"}, icon: "part_cloudy_day", nightIcon: "part_cloudy_night"},
	{terms: []string{"mostly cloudy", "m cloudy"}, icon: "most_cloudy_day", nightIcon: "most_cloudy_night"},
	{terms: []string{"cloudy", "overcast", "ovrcast"}, icon: "cloudy"},
	{terms: []string{"sun", "clear"}, icon: "clear_day", nightIcon: "clear_night"},
}

const iconFallback = "no_icon_match"

// IconFor selects the icon asset name for a simplified forecast string.
func IconFor(simplified string, isDaytime bool) string {
	if simplified == "" {
		simplified = "No Forecast"
	}
	lower := strings.ToLower(simplified)
	for _, rule := range iconRules {
		for _, term := range rule.terms {
			if strings.Contains(lower, term) {
				if !isDaytime && rule.nightIcon != "" {
					return iconName(rule.nightIcon)
				}
				return iconName(rule.icon)
			}
		}
	}
	return iconName(iconFallback)
}

func iconName(base string) string {
	return "icons/" + base + "_rgb565.raw"
}

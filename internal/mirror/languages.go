package mirror

import "strings"

// displayNames maps upstream repository language codes to human-readable
// names. Codes not listed fall back to a title-cased copy of the code.
var displayNames = map[string]string{
	"english":    "English",
	"spanish":    "Spanish",
	"french":     "French",
	"german":     "German",
	"russian":    "Russian",
	"mandarin":   "Mandarin Chinese",
	"japanese":   "Japanese",
	"korean":     "Korean",
	"portuguese": "Portuguese",
	"italian":    "Italian",
	"dutch":      "Dutch",
	"polish":     "Polish",
	"czech":      "Czech",
	"hungarian":  "Hungarian",
	"bulgarian":  "Bulgarian",
	"croatian":   "Croatian",
	"serbian":    "Serbian",
	"ukrainian":  "Ukrainian",
	"swedish":    "Swedish",
	"norwegian":  "Norwegian",
	"danish":     "Danish",
	"greek":      "Greek",
	"turkish":    "Turkish",
	"arabic":     "Arabic",
	"hebrew":     "Hebrew",
	"persian":    "Persian",
	"hindi":      "Hindi",
	"urdu":       "Urdu",
	"bengali":    "Bengali",
	"tamil":      "Tamil",
	"thai":       "Thai",
	"vietnamese": "Vietnamese",
	"indonesian": "Indonesian",
	"swahili":    "Swahili",
	"hausa":      "Hausa",
	"armenian":   "Armenian",
	"georgian":   "Georgian",
	"kazakh":     "Kazakh",
	"uzbek":      "Uzbek",
	"mongolian":  "Mongolian",
	"basque":     "Basque",
	"catalan":    "Catalan",
	"welsh":      "Welsh",
	"irish":      "Irish",
	"maltese":    "Maltese",
	"albanian":   "Albanian",
	"macedonian": "Macedonian",
	"bosnian":    "Bosnian",
	"abkhaz":     "Abkhaz",
	"bashkir":    "Bashkir",
	"chuvash":    "Chuvash",
}

func languageDisplayName(code string) string {
	if name, ok := displayNames[strings.ToLower(code)]; ok {
		return name
	}
	if code == "" {
		return ""
	}
	return strings.ToUpper(code[:1]) + strings.ToLower(code[1:])
}

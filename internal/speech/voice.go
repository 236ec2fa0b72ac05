package speech

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// Default voice identifiers per narrative language. Overridable through
// runtime settings; English is the fallback for undetected languages.
var defaultVoices = map[string]string{
	language.English.String(): "EXAVITQu4vr4xnSDxMaL",
	language.German.String():  "pNInz6obpgDQGcFmaJgB",
	language.French.String():  "ThT5KcBeYPX3keUQqHPh",
	language.Spanish.String(): "VR6AewLTigWG4xSOukaG",
	language.Chinese.String(): "XrExE9yKIg1WjnnlVkGX",
}

const fallbackVoice = "EXAVITQu4vr4xnSDxMaL"

// VoiceForText detects the language of the narrative and returns the voice
// identifier to synthesize it with.
func VoiceForText(text string) string {
	iso := whatlanggo.DetectLang(text).Iso6391()
	tag, err := language.Parse(iso)
	if err != nil {
		return fallbackVoice
	}
	if voice, ok := defaultVoices[tag.String()]; ok {
		return voice
	}
	return fallbackVoice
}

package narrative

import (
	"coldtrace/internal/types"
)

// languageNames maps supported language codes to their display names.
var languageNames = map[string]string{
	"en": "English",
	"hi": "हिंदी (Hindi)",
	"ta": "தமிழ் (Tamil)",
	"te": "తెలుగు (Telugu)",
	"kn": "ಕನ್ನಡ (Kannada)",
	"ml": "മലയാളം (Malayalam)",
	"mr": "मराठी (Marathi)",
	"gu": "ગુજરાતી (Gujarati)",
	"pa": "ਪੰਜਾਬੀ (Punjabi)",
	"bn": "বাংলা (Bengali)",
}

// statusTranslations renders status labels for farmers in nine Indian
// languages. Unknown has no entry and always passes through in English.
var statusTranslations = map[string]map[types.SpoilageStatus]string{
	"hi": {types.StatusSafe: "सुरक्षित", types.StatusWarning: "सावधानी", types.StatusCritical: "उच्च जोखिम"},
	"ta": {types.StatusSafe: "பாதுகாப்பானது", types.StatusWarning: "எச்சரிக்கை", types.StatusCritical: "அதிக ஆபத்து"},
	"te": {types.StatusSafe: "సురక్షితం", types.StatusWarning: "జాగ్రత్త", types.StatusCritical: "అధిక ప్రమాదం"},
	"kn": {types.StatusSafe: "ಸುರಕ್ಷಿತ", types.StatusWarning: "ಎಚ್ಚರಿಕೆ", types.StatusCritical: "ಹೆಚ್ಚಿನ ಅಪಾಯ"},
	"ml": {types.StatusSafe: "സുരക്ഷിതം", types.StatusWarning: "മുന്നറിയിപ്പ്", types.StatusCritical: "ഉയർന്ന അപകടം"},
	"mr": {types.StatusSafe: "सुरक्षित", types.StatusWarning: "सावधगिरी", types.StatusCritical: "उच्च धोका"},
	"gu": {types.StatusSafe: "સુરક્ષિત", types.StatusWarning: "સાવધાની", types.StatusCritical: "ઉચ્ચ જોખમ"},
	"pa": {types.StatusSafe: "ਸੁਰੱਖਿਅਤ", types.StatusWarning: "ਸਾਵਧਾਨੀ", types.StatusCritical: "ਉੱਚ ਜੋਖਮ"},
	"bn": {types.StatusSafe: "নিরাপদ", types.StatusWarning: "সতর্কতা", types.StatusCritical: "উচ্চ ঝুঁকি"},
}

// LocalizeStatus renders a spoilage status in the target language. English,
// unsupported languages, and untranslated statuses pass through unchanged.
func LocalizeStatus(status types.SpoilageStatus, lang string) string {
	if table, ok := statusTranslations[lang]; ok {
		if label, ok := table[status]; ok {
			return label
		}
	}
	return string(status)
}

// LanguageName returns the display name for a language code, falling back
// to the code itself.
func LanguageName(lang string) string {
	if name, ok := languageNames[lang]; ok {
		return name
	}
	return lang
}

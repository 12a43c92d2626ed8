package registry

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
)

const (
	alertTemplateAmharic = "🚩 ሪፖርት፡ ተፈላጊው ሰው [%s] በ [%s] ተመዝግቧል። የአልጋ ቁጥር፡ %s። አድራሻ፡ %s።"
	alertTemplateEnglish = "🚩 REPORT: Wanted person [%s] registered at [%s]. Bed number: %s. Address: %s."
)

// composeAlertText renders the alert announcing a watchlist match.
func composeAlertText(language state.Language, guest state.GuestRecord, originAddress string) string {
	template := alertTemplateAmharic
	if language == state.LanguageEnglish {
		template = alertTemplateEnglish
	}
	return fmt.Sprintf(template, guest.FullName, guest.OriginName, guest.BedNumber, originAddress)
}

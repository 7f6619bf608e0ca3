package report

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Language selects the output language.
type Language string

const (
	English Language = "en"
	Czech   Language = "cz"
)

// ParseLanguage accepts "en" and "cz". The ISO code "cs" is accepted as Czech.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "en":
		return English, nil
	case "cz", "cs":
		return Czech, nil
	default:
		return "", fmt.Errorf("unsupported language %q (en, cz)", s)
	}
}

// Tag returns the BCP 47 tag for l.
func (l Language) Tag() language.Tag {
	if l == Czech {
		return language.Czech
	}
	return language.English
}

// Printer returns a message printer for l backed by the built-in catalog.
func (l Language) Printer() *message.Printer {
	return message.NewPrinter(l.Tag(), message.Catalog(messages))
}

// labels maps enum values to display text. The keys are looked up as
// messages, so they also appear in czech below.
var labels = map[string]string{
	"succeeded":               "succeeded",
	"skipped-idempotent":      "already done",
	"simulated":               "would run",
	"failed":                  "failed",
	"rolled-back":             "rolled back",
	"aborted-upstream":        "not run",
	"success":                 "success",
	"completed-with-warnings": "completed with warnings",
	"aborted":                 "aborted",
	"critical":                "critical",
	"advisory":                "advisory",

	"scenario.workstation":   "Workstation - development powerhouse",
	"scenario.llm-server":    "LLM server - AI processing unit",
	"scenario.orchestration": "Orchestration - home automation hub",
	"scenario.database":      "Database server - data management hub",
	"scenario.monitoring":    "Monitoring - observability center",
}

// czech holds the czech text for every message key. English keys are the
// English format strings themselves.
var czech = map[string]string{
	"succeeded":               "úspěch",
	"skipped-idempotent":      "již hotovo",
	"simulated":               "proběhlo by",
	"failed":                  "selhalo",
	"rolled-back":             "vráceno zpět",
	"aborted-upstream":        "nespuštěno",
	"success":                 "úspěch",
	"completed-with-warnings": "dokončeno s varováními",
	"aborted":                 "zrušeno",
	"critical":                "kritická",
	"advisory":                "doporučená",

	"scenario.workstation":   "Workstation - vývojová stanice",
	"scenario.llm-server":    "LLM server - AI jednotka",
	"scenario.orchestration": "Orchestrace - centrum domácí automatizace",
	"scenario.database":      "Databázový server - centrum dat",
	"scenario.monitoring":    "Monitoring - centrum sledování",

	"UNIFICATION SYSTEM SETUP":               "UNIFIKACE NASTAVENÍ SYSTÉMU",
	"Scenario: %s":                           "Scénář: %s",
	"Package manager: %s":                    "Správce balíčků: %s",
	"Run %s":                                 "Běh %s",
	"Dry run, nothing was changed":           "Zkušební běh, nic nebylo změněno",
	"Status: %s":                             "Stav: %s",
	"Duration: %s":                           "Doba trvání: %s",
	"Phases":                                 "Fáze",
	"Warnings":                               "Varování",
	"Summary":                                "Souhrn",
	"%d succeeded, %d skipped, %d simulated": "%d úspěšně, %d přeskočeno, %d simulováno",
	"%d failed, %d rolled back, %d not run":  "%d selhalo, %d vráceno zpět, %d nespuštěno",
	"rollback failed: %s":                    "vrácení zpět selhalo: %s",
	"check failed: %s":                       "kontrola selhala: %s",
	"Run interrupted":                        "Běh přerušen",
	"Installation plan":                      "Plán instalace",
	"Packages: %d":                           "Balíčky: %d",
	"Estimated disk usage: %d MB":            "Odhad místa na disku: %d MB",
	"Estimated time: %d min":                 "Odhad času: %d min",
	"Conflicts":                              "Konflikty",
	"Unresolved packages":                    "Nenalezené balíčky",
	"Unsupported on %s":                      "Nepodporováno na %s",
	"No cost estimate":                       "Bez odhadu nákladů",
	"Scenarios":                              "Scénáře",
	"Package catalog":                        "Katalog balíčků",
	"%d packages":                            "%d balíčků",
	"Environment check":                      "Kontrola prostředí",
	"All preconditions met":                  "Všechny předpoklady splněny",
	"Some preconditions failed":              "Některé předpoklady nejsou splněny",
	"Run completed successfully":             "Běh úspěšně dokončen",
	"Run completed with warnings":            "Běh dokončen s varováními",
	"Run aborted":                            "Běh zrušen",
	"rollback":                               "návrat",
	"irreversible":                           "nevratné",
}

var messages = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range labels {
		mustSet(b, language.English, key, text)
	}
	for key, text := range czech {
		mustSet(b, language.Czech, key, text)
	}
	return b
}

func mustSet(b *catalog.Builder, tag language.Tag, key, text string) {
	if err := b.SetString(tag, key, text); err != nil {
		panic(fmt.Sprintf("report: invalid message %q: %v", key, err))
	}
}

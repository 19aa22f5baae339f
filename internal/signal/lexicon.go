package signal

// The fixed Russian lexicon. Action verbs are imperative/modal forms that
// mark a message as actionable; date expressions cover explicit
// day+genitive-month forms, deadline markers and relative day terms.

// actionVerbLexicon is matched against lower-cased tokens.
var actionVerbLexicon = map[string]struct{}{
	"прошу":       {},
	"просьба":     {},
	"нужно":       {},
	"надо":        {},
	"необходимо":  {},
	"срочно":      {},
	"проверить":   {},
	"проверьте":   {},
	"утвердить":   {},
	"утвердите":   {},
	"согласовать": {},
	"согласуйте":  {},
	"подготовить": {},
	"подготовьте": {},
	"отправить":   {},
	"отправьте":   {},
	"сделать":     {},
	"сделайте":    {},
	"посмотреть":  {},
	"посмотрите":  {},
	"ответить":    {},
	"ответьте":    {},
	"подтвердить": {},
	"подтвердите": {},
	"напомнить":   {},
	"обсудить":    {},
	"прислать":    {},
	"пришлите":    {},
	"заполнить":   {},
	"заполните":   {},
	"исправить":   {},
	"дедлайн":     {},
}

// relativeDateLexicon is matched against lower-cased tokens. Token-level
// matching avoids substring hits like «завтрак».
var relativeDateLexicon = map[string]struct{}{
	"сегодня":     {},
	"завтра":      {},
	"послезавтра": {},
	"вчера":       {},
	"today":       {},
	"tomorrow":    {},
	"yesterday":   {},
}

// urgentDateTerms score highest in priority ranking.
var urgentDateTerms = map[string]struct{}{
	"сегодня":  {},
	"завтра":   {},
	"today":    {},
	"tomorrow": {},
}

const genitiveMonths = `января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря`

const (
	// absoluteDateExpr matches day+month expressions with an optional
	// deadline marker, and marker+numeric dates («до 15.03»).
	absoluteDateExpr = `(?i)(?:(?:до|к|не позднее)\s+)?\d{1,2}\s+(?:` + genitiveMonths + `)` +
		`|(?:до|к|не позднее)\s+\d{1,2}[./]\d{1,2}(?:[./]\d{2,4})?`

	// tokenExpr splits text into candidate lexicon tokens.
	tokenExpr = `(?i)[а-яёa-z]+`

	// headerExpr matches a line starting with an uppercase run (Cyrillic
	// or Latin) followed by ": ".
	headerExpr = `^[A-ZА-ЯЁ]+: `
)

// lexiconPatterns lists every pattern the extractor compiles; the backend
// probe certifies all of them.
func lexiconPatterns() []string {
	return []string{absoluteDateExpr, tokenExpr, headerExpr}
}

// IsUrgentDate reports whether a raw date expression refers to today or
// tomorrow. Used by the priority scorer.
func IsUrgentDate(expr string) bool {
	_, ok := urgentDateTerms[lowerTrim(expr)]
	return ok
}

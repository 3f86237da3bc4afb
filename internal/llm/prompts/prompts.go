package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/certprep/internal/model"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// Lang is the language the explanation is written in.
type Lang string

const (
	LangEnglish Lang = "en"
	LangKorean  Lang = "ko"
)

var validLangs = map[Lang]bool{
	LangEnglish: true,
	LangKorean:  true,
}

// Template names every language file defines.
const (
	ExplainSystem  = "explain_system"
	ExplainUser    = "explain_user"
	KeywordsSystem = "keywords_system"
	KeywordsUser   = "keywords_user"
)

const maxQuestionRunes = 8000

var controlTagRegex = regexp.MustCompile(`(?i)</?\s*system(-instructions)?\b[^>]*>`)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Lang]*template.Template
)

// IsValidLang checks if a prompt language is supported.
func IsValidLang(l string) bool {
	return validLangs[Lang(l)]
}

// Option is one numbered answer option.
type Option struct {
	Number int
	Text   string
}

// Data holds template data for explanation and keyword prompts.
type Data struct {
	Question       string
	Options        []Option
	CorrectNumbers string // 1-based, comma separated
	CorrectTexts   []string
	WrongOptions   []Option
}

// NewData builds template data for q. Options are numbered from 1.
func NewData(q model.Question) Data {
	d := Data{Question: sanitize(q.Text)}
	correct := make(map[int]bool, len(q.CorrectAnswers))
	nums := make([]string, 0, len(q.CorrectAnswers))
	for _, c := range q.CorrectAnswers {
		correct[c] = true
		nums = append(nums, strconv.Itoa(c+1))
		if c >= 0 && c < len(q.Options) {
			d.CorrectTexts = append(d.CorrectTexts, sanitize(q.Options[c]))
		}
	}
	d.CorrectNumbers = strings.Join(nums, ", ")
	for i, text := range q.Options {
		o := Option{Number: i + 1, Text: sanitize(text)}
		d.Options = append(d.Options, o)
		if !correct[i] {
			d.WrongOptions = append(d.WrongOptions, o)
		}
	}
	return d
}

// Load parses prompt templates from fsys, or from the embedded templates if
// fsys is nil. It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		if fsys == nil {
			fsys = embedded
		}
		templates = make(map[Lang]*template.Template)
		funcs := template.FuncMap{"join": strings.Join}
		for l := range validLangs {
			file := "templates/" + string(l) + ".tmpl"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(l)).Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			for _, name := range []string{ExplainSystem, ExplainUser, KeywordsSystem, KeywordsUser} {
				if tmpl.Lookup(name) == nil {
					loadErr = fmt.Errorf("prompt file %s does not define %q", file, name)
					return
				}
			}
			templates[l] = tmpl
		}
	})
	return loadErr
}

// Build renders the named template for lang.
func Build(lang Lang, name string, q model.Question) (string, error) {
	if templates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[lang]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt language: " + string(lang))
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, NewData(q)); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// sanitize strips tags that try to pose as instructions and caps the length
// of uploaded question text.
func sanitize(s string) string {
	s = strings.TrimSpace(controlTagRegex.ReplaceAllString(s, ""))
	if utf8.RuneCountInString(s) > maxQuestionRunes {
		s = string([]rune(s)[:maxQuestionRunes]) + "\n[truncated]"
	}
	return s
}

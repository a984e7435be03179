package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"
)

// ConfigError 는 정책 파일 로딩/컴파일 실패를 나타낸다.
// 정책 오류는 런타임에 무시하지 않고 기동 단계에서 치명적으로 처리한다.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("policy config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Rule 은 차단 정책 한 건이다. Enabled 가 생략되면 활성으로 본다.
type Rule struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description" json:"description"`
	Enabled     *bool    `yaml:"enabled" json:"enabled"`
	Weight      float64  `yaml:"weight" json:"weight"`
	Phrases     []string `yaml:"phrases" json:"phrases,omitempty"`
	Patterns    []string `yaml:"patterns" json:"patterns,omitempty"`
}

// Active 는 규칙 활성 여부를 반환한다.
func (r Rule) Active() bool {
	return r.Enabled == nil || *r.Enabled
}

// Hit 은 입력에서 매칭된 정책 정보다.
type Hit struct {
	RuleID  string  `json:"rule_id"`
	Weight  float64 `json:"weight"`
	Matched string  `json:"matched"`
}

type rawPack struct {
	Version int    `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

type compiledRule struct {
	rule     Rule
	phrases  []string
	matcher  *ahocorasick.Matcher
	patterns []*regexp.Regexp
}

// Set 은 디렉터리의 모든 정책 팩을 컴파일해 보관한다.
type Set struct {
	rules []compiledRule
	byID  map[string]Rule
}

// Load 는 dir 의 *.yml / *.yaml 정책 팩을 모두 읽어 컴파일한다.
// 파일이 하나도 없거나, 파싱/컴파일에 실패하면 ConfigError 를 반환한다.
func Load(dir string, logger *slog.Logger) (*Set, error) {
	paths, err := findPolicyFiles(dir)
	if err != nil {
		return nil, &ConfigError{Path: dir, Err: err}
	}
	if len(paths) == 0 {
		return nil, &ConfigError{Path: dir, Err: fmt.Errorf("no policy files found")}
	}

	set := &Set{byID: make(map[string]Rule)}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}

		var raw rawPack
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}

		for _, rule := range raw.Rules {
			compiled, err := compileRule(rule)
			if err != nil {
				return nil, &ConfigError{Path: path, Err: err}
			}
			if _, exists := set.byID[rule.ID]; exists {
				return nil, &ConfigError{Path: path, Err: fmt.Errorf("duplicate rule id: %s", rule.ID)}
			}
			set.byID[rule.ID] = rule
			set.rules = append(set.rules, compiled)
		}
	}

	if logger != nil {
		logger.Info("policies_loaded", "dir", dir, "files", len(paths), "rules", len(set.rules))
	}
	return set, nil
}

func findPolicyFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory")
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}

func compileRule(rule Rule) (compiledRule, error) {
	if rule.ID == "" {
		return compiledRule{}, fmt.Errorf("rule without id")
	}
	if len(rule.Phrases) == 0 && len(rule.Patterns) == 0 {
		return compiledRule{}, fmt.Errorf("rule %s has neither phrases nor patterns", rule.ID)
	}
	if rule.Weight == 0 {
		rule.Weight = 1.0
	}

	compiled := compiledRule{rule: rule}

	if len(rule.Phrases) > 0 {
		phrases := make([]string, 0, len(rule.Phrases))
		patterns := make([][]byte, 0, len(rule.Phrases))
		for _, phrase := range rule.Phrases {
			value := strings.ToLower(phrase)
			phrases = append(phrases, value)
			patterns = append(patterns, []byte(value))
		}
		compiled.phrases = phrases
		compiled.matcher = ahocorasick.NewMatcher(patterns)
	}

	for _, pattern := range rule.Patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("rule %s pattern %q: %w", rule.ID, pattern, err)
		}
		compiled.patterns = append(compiled.patterns, re)
	}

	return compiled, nil
}

// Match 는 활성 규칙을 모두 검사해 매칭 목록을 반환한다.
// 구문 매칭은 소문자 기준, 정규식은 (?i) 로 컴파일되어 있다.
func (s *Set) Match(text string) []Hit {
	if s == nil || text == "" {
		return nil
	}

	lowered := strings.ToLower(text)
	loweredBytes := []byte(lowered)

	var hits []Hit
	for _, compiled := range s.rules {
		if !compiled.rule.Active() {
			continue
		}

		matched := ""
		if compiled.matcher != nil {
			if indexes := compiled.matcher.Match(loweredBytes); len(indexes) > 0 {
				matched = compiled.phrases[indexes[0]]
			}
		}
		if matched == "" {
			for _, re := range compiled.patterns {
				if found := re.FindString(text); found != "" {
					matched = found
					break
				}
			}
		}

		if matched != "" {
			hits = append(hits, Hit{
				RuleID:  compiled.rule.ID,
				Weight:  compiled.rule.Weight,
				Matched: matched,
			})
		}
	}
	return hits
}

// ByID 는 규칙을 조회한다.
func (s *Set) ByID(id string) (Rule, bool) {
	rule, ok := s.byID[id]
	return rule, ok
}

// Rules 는 전체 규칙 목록을 반환한다. (조회 API 용)
func (s *Set) Rules() []Rule {
	rules := make([]Rule, 0, len(s.rules))
	for _, compiled := range s.rules {
		rules = append(rules, compiled.rule)
	}
	return rules
}

// Len 은 규칙 수를 반환한다.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Describe 는 가디언 프롬프트에 주입할 활성 정책 요약을 만든다.
func (s *Set) Describe() string {
	var builder strings.Builder
	for _, compiled := range s.rules {
		if !compiled.rule.Active() {
			continue
		}
		builder.WriteString("- ")
		builder.WriteString(compiled.rule.ID)
		if compiled.rule.Description != "" {
			builder.WriteString(": ")
			builder.WriteString(compiled.rule.Description)
		}
		builder.WriteString("\n")
	}
	return builder.String()
}

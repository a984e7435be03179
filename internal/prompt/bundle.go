package prompt

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle: 가디언별 프롬프트 YAML 모음을 관리합니다.
// 각 프롬프트는 정적 system 필드와 템플릿 user 필드를 가진다.
type Bundle struct {
	label   string
	prompts map[string]map[string]string
}

// LoadBundle: fs 내 dir 디렉터리의 YAML 프롬프트들을 로드하여 Bundle로 반환합니다.
func LoadBundle(fsys fs.FS, dir string, label string) (*Bundle, error) {
	loaded, err := loadYAMLDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return nil, fmt.Errorf("%s: no prompt files in %s", label, dir)
	}
	return &Bundle{label: label, prompts: loaded}, nil
}

// Prompt: 이름으로 프롬프트 맵을 조회합니다.
func (b *Bundle) Prompt(name string) (map[string]string, error) {
	if b == nil || b.prompts == nil {
		return nil, fmt.Errorf("prompts not initialized")
	}
	promptMap, ok := b.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%s: prompt not found: %s", b.label, name)
	}
	return promptMap, nil
}

// Render 는 프롬프트의 system/user 쌍을 완성한다.
// system 은 정적 텍스트, user 는 values 로 치환되는 템플릿이다.
func (b *Bundle) Render(name string, values map[string]string) (string, string, error) {
	promptMap, err := b.Prompt(name)
	if err != nil {
		return "", "", err
	}

	system := promptMap["system"]
	userTemplate, ok := promptMap["user"]
	if !ok {
		return "", "", fmt.Errorf("%s: prompt %s missing user template", b.label, name)
	}

	user, err := FormatTemplate(userTemplate, values)
	if err != nil {
		return "", "", fmt.Errorf("%s: render %s: %w", b.label, name, err)
	}
	return system, user, nil
}

func loadYAMLDir(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob prompt dir: %w", err)
		}
		paths = append(paths, matches...)
	}

	prompts := make(map[string]map[string]string)
	for _, filePath := range paths {
		promptName := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
		mapping, err := loadYAMLMapping(fsys, filePath)
		if err != nil {
			return nil, err
		}
		prompts[promptName] = mapping
	}
	return prompts, nil
}

func loadYAMLMapping(fsys fs.FS, filePath string) (map[string]string, error) {
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompt yaml: %w", err)
	}

	mapping := make(map[string]string)
	for key, value := range raw {
		if value == nil {
			mapping[key] = ""
			continue
		}
		mapping[key] = fmt.Sprint(value)
	}

	// system 프롬프트는 런타임 치환을 허용하지 않는다 (주입 경로 차단)
	system, ok := mapping["system"]
	if ok && strings.TrimSpace(system) != "" {
		if err := ValidateSystemStatic(filePath, system); err != nil {
			return nil, err
		}
	}

	return mapping, nil
}

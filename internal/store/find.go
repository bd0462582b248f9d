package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
)

// FindTemplate 根据用户输入定位模板：先精确匹配，再子串匹配，最后模糊匹配
func (s *Store) FindTemplate(ctx context.Context, choice string) (string, error) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return "", fmt.Errorf("%w: 模板名称为空", ErrNotFound)
	}

	entries, err := s.ListTemplates(ctx)
	if err != nil {
		return "", err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Filename
	}

	name, ok := bestMatch(choice, names)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, choice)
	}
	s.logger.Debug("模板已定位", zap.String("choice", choice), zap.String("template", name))
	return name, nil
}

func bestMatch(choice string, names []string) (string, bool) {
	lower := strings.ToLower(choice)

	for _, name := range names {
		if strings.ToLower(name) == lower {
			return name, true
		}
	}
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), lower) {
			return name, true
		}
	}

	matches := fuzzy.Find(choice, names)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}

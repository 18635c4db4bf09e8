package generator

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/jcdickinson/kbpress/internal/fsutil"
)

// DefaultNavText labels the group holding namespaces without a nav setting.
const DefaultNavText = "知识库"

// NavItem is one entry of nav.json.
type NavItem struct {
	Text  string    `json:"text"`
	Link  string    `json:"link,omitempty"`
	Items []NavItem `json:"items,omitempty"`
}

// BuildNav groups the namespace items by their nav setting. Custom groups
// come first in the order they were first seen, then standalone items
// (nav "true"), then the default group.
func BuildNav(namespaces []Namespace, items []NavItem, defaultText string) []NavItem {
	if defaultText == "" {
		defaultText = DefaultNavText
	}

	var groups []NavItem
	groupIdx := make(map[string]int)
	var standalone, defaults []NavItem

	for i, ns := range namespaces {
		if i >= len(items) {
			break
		}
		item := items[i]
		switch ns.Nav {
		case "":
			defaults = append(defaults, item)
		case "true":
			standalone = append(standalone, item)
		default:
			j, ok := groupIdx[ns.Nav]
			if !ok {
				j = len(groups)
				groupIdx[ns.Nav] = j
				groups = append(groups, NavItem{Text: ns.Nav})
			}
			groups[j].Items = append(groups[j].Items, item)
		}
	}

	nav := make([]NavItem, 0, len(groups)+len(standalone)+1)
	nav = append(nav, groups...)
	nav = append(nav, standalone...)
	if len(defaults) > 0 {
		nav = append(nav, NavItem{Text: defaultText, Items: defaults})
	}
	return nav
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return fsutil.WriteFile(path, data)
}

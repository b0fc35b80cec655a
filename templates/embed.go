// Package templates embeds the Telegram message bodies sent to players and
// operators.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed notifications/*.tmpl
var notifications embed.FS

// Notification returns the body of the named template, e.g.
// "withdrawal_backlog" for notifications/withdrawal_backlog.tmpl.
func Notification(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\.") {
		return "", fmt.Errorf("invalid notification template name %q", name)
	}
	raw, err := notifications.ReadFile(path.Join("notifications", name+".tmpl"))
	if err != nil {
		return "", fmt.Errorf("notification template %s: %w", name, err)
	}
	return string(raw), nil
}

// NotificationNames lists every embedded template name.
func NotificationNames() ([]string, error) {
	entries, err := fs.Glob(notifications, "notifications/*.tmpl")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(path.Base(entry), ".tmpl"))
	}
	return names, nil
}

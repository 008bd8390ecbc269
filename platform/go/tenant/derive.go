package tenant

import (
	"strings"
	"time"
)

// ToSnake converts a kebab-case key into snake_case for schema names.
func ToSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}

// ReportKey returns the object key of an archived job report:
// `<envKey>/reports/<job>/<yyyy>/<mm>/<dd>/<runID>.json`.
func ReportKey(envKey, job, runID string, at time.Time) string {
	envKey = strings.Trim(strings.TrimSpace(envKey), "/")
	if envKey == "" {
		envKey = "default"
	}
	return envKey + "/reports/" + job + "/" + at.UTC().Format("2006/01/02") + "/" + runID + ".json"
}

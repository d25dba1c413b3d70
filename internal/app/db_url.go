package app

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gge-tracker/gge-tracker-sub001/internal/config"
)

// DatabaseURL returns the connection string for one server database.
func DatabaseURL(cfg config.Config, database string) string {
	return normalizeDBURL(withDatabase(cfg.DBURL, database), cfg.DBDisablePreparedBinary)
}

func normalizeDBURL(raw string, disablePreparedBinaryResult bool) string {
	if !disablePreparedBinaryResult {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil || parsed.Scheme == "" {
		return raw
	}

	query := parsed.Query()
	if query.Get("disable_prepared_binary_result") == "" {
		query.Set("disable_prepared_binary_result", "yes")
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

var dsnDBNameRegex = regexp.MustCompile(`(^|\s)dbname=\S+`)

// withDatabase points raw at the given database. Each game server has its
// own database on a shared host.
func withDatabase(raw, database string) string {
	database = strings.TrimSpace(database)
	if database == "" {
		return raw
	}

	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err == nil && parsed != nil && parsed.Scheme != "" {
		parsed.Path = "/" + database
		return parsed.String()
	}

	if dsnDBNameRegex.MatchString(trimmed) {
		return dsnDBNameRegex.ReplaceAllString(trimmed, "${1}dbname="+database)
	}
	return strings.TrimSpace(trimmed + " dbname=" + database)
}

func dbNameFromURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err == nil && parsed != nil && parsed.Scheme != "" {
		name := strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/"))
		if name != "" {
			return name
		}
	}

	for _, token := range strings.Fields(trimmed) {
		if !strings.HasPrefix(token, "dbname=") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(token, "dbname="))
		name = strings.Trim(name, `"'`)
		if name != "" {
			return name
		}
	}

	return ""
}

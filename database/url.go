package database

import (
	"fmt"
	"strings"
)

// ConstructDatabaseURL combines a base URL and an optional database name.
// sslmode=disable is appended when the URL does not set sslmode.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	baseURL = strings.TrimRight(baseURL, "/")
	var databaseURL string

	if strings.Contains(baseURL, "?") {
		// Insert database name before the query parameters
		parts := strings.SplitN(baseURL, "?", 2)
		databaseURL = fmt.Sprintf("%s/%s?%s", parts[0], databaseName, parts[1])
	} else {
		databaseURL = fmt.Sprintf("%s/%s", baseURL, databaseName)
	}

	if !strings.Contains(databaseURL, "sslmode=") {
		separator := "&"
		if !strings.Contains(databaseURL, "?") {
			separator = "?"
		}
		databaseURL = fmt.Sprintf("%s%ssslmode=disable", databaseURL, separator)
	}

	return databaseURL
}

// RedactURL hides the password of a postgres URL for logging.
func RedactURL(databaseURL string) string {
	schemeEnd := strings.Index(databaseURL, "://")
	at := strings.LastIndex(databaseURL, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return databaseURL
	}
	credentials := databaseURL[schemeEnd+3 : at]
	colon := strings.Index(credentials, ":")
	if colon < 0 {
		return databaseURL
	}
	return databaseURL[:schemeEnd+3] + credentials[:colon] + ":***" + databaseURL[at:]
}

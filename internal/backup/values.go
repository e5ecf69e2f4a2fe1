package backup

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// formatSQLValue renders a scanned database value as a SQL literal.
// The mysql driver yields []byte for most column types unless parseTime
// rewrites temporal columns to time.Time.
func formatSQLValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return quoteStringLiteral(string(value))
	case string:
		return quoteStringLiteral(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case uint64:
		return strconv.FormatUint(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case bool:
		if value {
			return "1"
		}
		return "0"
	case time.Time:
		return "'" + value.Format("2006-01-02 15:04:05") + "'"
	default:
		return quoteStringLiteral(fmt.Sprintf("%v", value))
	}
}

// quoteStringLiteral single-quotes a string for a SQL script, escaping
// quotes and backslashes.
func quoteStringLiteral(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `''`,
		"\x00", `\0`,
		"\n", `\n`,
		"\r", `\r`,
	)
	return "'" + replacer.Replace(s) + "'"
}

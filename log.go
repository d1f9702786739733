package dbv

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

var whitespace = regexp.MustCompile(`\s+`)

func cleanSQL(query string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(query, " "))
}

// operationType is the upper-cased first keyword of a statement.
func operationType(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func (d *Database) sendStats(start time.Time, queryType, query string, nargs int, errp *error) {
	duration := time.Since(start)
	op := operationType(query)

	var err error
	if errp != nil {
		err = *errp
	}

	fields := []zap.Field{
		zap.String("type", queryType),
		zap.String("operation", op),
		zap.String("query", cleanSQL(query)),
		zap.Duration("duration", duration),
		zap.Int("args", nargs),
	}
	if err != nil {
		d.logger.Error("sql failed", append(fields, zap.Error(err))...)
	} else {
		d.logger.Debug("sql", fields...)
	}

	d.metrics.observe(d.def.Name(), op, duration, err)
}

package paginator

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DatetimeLayout формат строки поиска по колонкам datetime
const DatetimeLayout = "2006-01-02 15:04:05"

// IsFloat строка разбирается как число с плавающей точкой
func IsFloat(value string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return err == nil
}

// IsNumeric строка состоит только из цифр
func IsNumeric(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsValidBoolean строка true или false без учета регистра
func IsValidBoolean(value string) bool {
	v := strings.ToLower(value)
	return v == "true" || v == "false"
}

// IsValidUUID строка разбирается как UUID
func IsValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

// IsValidDatetime строка в формате YYYY-MM-DD HH:MM:SS
func IsValidDatetime(value string) bool {
	_, err := time.Parse(DatetimeLayout, value)
	return err == nil
}

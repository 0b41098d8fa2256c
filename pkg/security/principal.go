package security

import (
	"os"
	osuser "os/user"
)

// CurrentUser возвращает имя пользователя процесса для записей аудита.
// Переменная SEMLAYER_USER имеет приоритет над системным пользователем.
func CurrentUser() string {
	if name := os.Getenv("SEMLAYER_USER"); name != "" {
		return name
	}
	if u, err := osuser.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if name := os.Getenv("USERNAME"); name != "" {
		return name
	}
	return "unknown"
}

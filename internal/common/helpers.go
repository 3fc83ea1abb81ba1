// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: работа со временем (граница суток, понедельник) и форматирование WP.
package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultResetTime: граница суток по умолчанию.
const DefaultResetTime = "00:00"

// ParseResetTime разбирает строку "HH:mm" в часы и минуты.
// Часы 0-23, минуты 0-59, иначе ErrInvalidResetTime.
func ParseResetTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidResetTime
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, ErrInvalidResetTime
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, ErrInvalidResetTime
	}
	return hour, minute, nil
}

// DayString возвращает ключ суток "2006-01-02" с учётом пользовательской границы.
//
// Пример: при границе "04:00" момент 03:59 пятницы относится к четвергу.
// Некорректная граница трактуется как полночь.
func DayString(now time.Time, resetTime string) string {
	hour, minute, err := ParseResetTime(resetTime)
	if err != nil {
		hour, minute = 0, 0
	}
	boundary := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(boundary) {
		now = now.AddDate(0, 0, -1)
	}
	return now.Format("2006-01-02")
}

// LastMondayMidnight возвращает последний наступивший понедельник 00:00
// (сам now, если now ровно в понедельник 00:00).
func LastMondayMidnight(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	// time.Monday == 1, Sunday == 0
	offset := (int(midnight.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}

// NextMondayMidnight возвращает ближайший следующий понедельник 00:00.
func NextMondayMidnight(now time.Time) time.Time {
	return LastMondayMidnight(now).AddDate(0, 0, 7)
}

// FormatPoints форматирует баланс: FormatPoints(15) → "15 WP"
func FormatPoints(points int64) string {
	return fmt.Sprintf("%d WP", points)
}

// FormatPointsAmount создаёт строку вида "+10 WP" или "-6 WP".
func FormatPointsAmount(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%d WP", amount)
	}
	return fmt.Sprintf("%d WP", amount)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в заданной зоне.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// ToMillis и FromMillis - хранение моментов в настройках (0 = «никогда»).
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

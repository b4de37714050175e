package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the account identifier under "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID records the request identifier under "request_id".
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Tier(tier string) slog.Attr {
	return slog.String("tier", tier)
}

// Status records a derived subscription status kind.
func Status(kind string) slog.Attr {
	return slog.String("status", kind)
}

func IdempotencyKey(key string) slog.Attr {
	return slog.String("idempotency_key", key)
}

func ReservationID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("reservation_id", id)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

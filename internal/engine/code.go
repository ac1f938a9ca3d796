package engine

import (
	"crypto/rand"

	"github.com/hooprank/internal/domain"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// uniqueInviteCode generates an invite code that no active room is
// using. Callers must hold e.mu.
func (e *Engine) uniqueInviteCode() (string, error) {
	for attempt := 0; attempt < e.opts.MaxCodeRetries; attempt++ {
		code, err := randomCode(e.opts.InviteCodeLen)
		if err != nil {
			return "", err
		}
		if !e.codeInUse(code) {
			return code, nil
		}
	}
	return "", domain.ErrCodeExhausted
}

func (e *Engine) codeInUse(code string) bool {
	for _, r := range e.state.GameRooms {
		if r.InviteCode != code {
			continue
		}
		if r.Status == domain.RoomWaitingForGuest || r.Status == domain.RoomReady {
			return true
		}
	}
	return false
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}

package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNopNotify(t *testing.T) {
	assert.NoError(t, Nop{}.Notify("anything"))
}

func TestTelegramUnconfigured(t *testing.T) {
	assert.Error(t, (&Telegram{}).Notify("msg"))
	assert.Error(t, NewTelegram("token", "").Notify("msg"))
	assert.Error(t, NewTelegram("", "chat").Notify("msg"))
}

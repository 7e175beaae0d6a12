package messenger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Button is an inline keyboard button. It either carries raw callback data
// or opens URL.
type Button struct {
	Text string
	Data string
	URL  string
}

// Messenger abstracts the chat platform pushes are delivered through.
// Mocking this interface in tests gives full control over delivery outcomes
// without talking to Telegram.
type Messenger interface {
	// SendPhoto sends a photo by platform file id and returns the message id.
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, buttons []Button) (int, error)
	// SendText sends an HTML text message and returns the message id.
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	// Delete retracts a previously sent message.
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// Action is an admin's answer to a push, sent back as callback data.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

const callbackPrefix = "push"

// PushButtons returns the accept and reject buttons attached to a push message.
func PushButtons(pushID int64) []Button {
	return []Button{
		{Text: "Accept", Data: CallbackData(ActionAccept, pushID)},
		{Text: "Reject", Data: CallbackData(ActionReject, pushID)},
	}
}

// CallbackData encodes an action on a push as "push:<action>:<id>".
func CallbackData(action Action, pushID int64) string {
	return callbackPrefix + ":" + string(action) + ":" + strconv.FormatInt(pushID, 10)
}

// ParseCallback decodes data produced by CallbackData.
func ParseCallback(data string) (Action, int64, error) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return "", 0, fmt.Errorf("unrecognised callback data %q", data)
	}
	action := Action(parts[1])
	if action != ActionAccept && action != ActionReject {
		return "", 0, fmt.Errorf("unknown push action %q", parts[1])
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid push id %q", parts[2])
	}
	return action, id, nil
}

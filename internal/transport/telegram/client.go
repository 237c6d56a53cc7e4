package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
)

const defaultPollTimeout = 60 * time.Second

type Config struct {
	Token       string
	Channels    []string // "@username" or numeric chat id; all must be joined
	PollTimeout time.Duration
	APIURL      string // telebot default if empty

	offline     bool // skip getMe
	synchronous bool // run handlers on the update goroutine
}

// Client talks to Bot API on behalf of the ledger
// It is the membership oracle and the notifier
type Client struct {
	api      *tele.Bot
	channels []string
	logger   logger.Logger
}

func NewClient(cfg Config, l logger.Logger) (*Client, error) {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}

	l = l.With("component", "telegram")

	api, err := tele.NewBot(tele.Settings{
		Token:       cfg.Token,
		URL:         cfg.APIURL,
		Poller:      &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline:     cfg.offline,
		Synchronous: cfg.synchronous,
		OnError: func(err error, c tele.Context) {
			var senderID int64
			if c != nil && c.Sender() != nil {
				senderID = c.Sender().ID
			}
			l.Error("Update handler failed", "sender_id", senderID, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	channels := make([]string, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}

	return &Client{api: api, channels: channels, logger: l}, nil
}

// Username of the bot, empty when created offline
func (c *Client) Username() string {
	return c.api.Me.Username
}

// Channels the account must join
func (c *Client) Channels() []string {
	return c.channels
}

// IsMember reports whether the account joined every required channel
func (c *Client) IsMember(ctx context.Context, accountID string) (bool, error) {
	user, err := userOf(accountID)
	if err != nil {
		return false, err
	}

	for _, ch := range c.channels {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		member, err := c.api.ChatMemberOf(chatRecipient(ch), user)
		if err != nil {
			return false, fmt.Errorf("can't get membership in %s: %w", ch, err)
		}
		if !isJoined(member.Role) {
			return false, nil
		}
	}
	return true, nil
}

// Notify sends the message to the account private chat
func (c *Client) Notify(ctx context.Context, accountID string, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	user, err := userOf(accountID)
	if err != nil {
		return err
	}

	if _, err := c.api.Send(user, message); err != nil {
		return fmt.Errorf("can't notify %s: %w", accountID, err)
	}
	return nil
}

func isJoined(role tele.MemberStatus) bool {
	switch role {
	case tele.Member, tele.Administrator, tele.Creator:
		return true
	default:
		return false
	}
}

// chatRecipient addresses a chat by "@username" or id
type chatRecipient string

func (r chatRecipient) Recipient() string {
	return string(r)
}

func userOf(accountID string) (*tele.User, error) {
	id, err := strconv.ParseInt(accountID, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperrors.ErrInvalidAccountID
	}
	return &tele.User{ID: id}, nil
}

func accountOf(u *tele.User) string {
	return strconv.FormatInt(u.ID, 10)
}

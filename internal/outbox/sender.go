package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/messages"
)

// ErrSendRejected reports a send that kept failing with a ban-shaped error
// after every retry.
var ErrSendRejected = errors.New("send rejected by daemon")

// Error substrings that mark a failure as a possible ban. The daemon does
// not expose a structured code for this.
var banKeywords = []string{"ban", "blocked", "not allowed", "forbidden", "permission denied"}

// Appender receives the optimistic local copy of an outbound message.
type Appender interface {
	Append(accountID string, msg messages.Message)
}

// BanRefresher re-reads the banned flag of the given contacts from the
// daemon.
type BanRefresher interface {
	RefreshBanStatus(ctx context.Context, accountID string, uris []string)
}

// Options tunes the retry behavior.
type Options struct {
	MaxRetries     int
	InitialDelayMS int64
}

// DefaultOptions returns the standard retry schedule: three extra attempts
// with delays of one, two and four seconds.
func DefaultOptions() Options {
	return Options{MaxRetries: 3, InitialDelayMS: 1000}
}

// Sender wraps outbound message sends with ban-error detection and bounded
// exponential-backoff retry.
type Sender struct {
	holder   *bridge.Holder
	appender Appender
	bans     BanRefresher
	self     messages.SelfResolver
	logger   *zap.Logger
	opts     Options

	// sleep waits for d unless ctx is done first. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSender creates a sender. appender, bans and self may be nil.
func NewSender(holder *bridge.Holder, appender Appender, bans BanRefresher, self messages.SelfResolver, logger *zap.Logger, opts Options) *Sender {
	if opts.MaxRetries <= 0 {
		opts = DefaultOptions()
	}
	return &Sender{
		holder:   holder,
		appender: appender,
		bans:     bans,
		self:     self,
		logger:   logger,
		opts:     opts,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Send delivers one text message. Ban-shaped failures are retried with
// doubling delays after refreshing the members' ban flags; any other
// failure returns immediately. On success an optimistic local copy is
// appended so the UI shows the message before the daemon echo arrives.
func (s *Sender) Send(ctx context.Context, accountID, conversationID, body string) (messages.Message, error) {
	serverID, err := s.holder.Bridge().SendMessage(ctx, accountID, conversationID, body, "")
	if err != nil {
		if !isBanError(err) {
			return messages.Message{}, err
		}
		serverID, err = s.retry(ctx, accountID, conversationID, body, err)
		if err != nil {
			return messages.Message{}, err
		}
	}

	msg := s.optimistic(conversationID, serverID)
	msg.Body = body
	msg.Type = messages.TypeText
	s.append(accountID, msg)
	return msg, nil
}

// SendFile delivers one file transfer, classifying the local file by
// sniffed content type for the optimistic copy.
func (s *Sender) SendFile(ctx context.Context, accountID, conversationID, path string) (messages.Message, error) {
	displayName := filepath.Base(path)
	if err := s.holder.Bridge().SendFile(ctx, accountID, conversationID, path, displayName); err != nil {
		return messages.Message{}, err
	}

	msg := s.optimistic(conversationID, "")
	msg.Body = displayName
	msg.Type = sniffType(path)
	s.append(accountID, msg)
	return msg, nil
}

// retry runs the backoff schedule after a ban-shaped failure. Between
// attempts the conversation members' ban flags are refreshed, since an
// unban on the daemon side is what makes a later attempt succeed.
func (s *Sender) retry(ctx context.Context, accountID, conversationID, body string, lastErr error) (string, error) {
	delay := time.Duration(s.opts.InitialDelayMS) * time.Millisecond
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		s.refreshMembers(ctx, accountID, conversationID)

		if err := s.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2

		serverID, err := s.holder.Bridge().SendMessage(ctx, accountID, conversationID, body, "")
		if err == nil {
			return serverID, nil
		}
		lastErr = err
		s.logger.Warn("send retry failed",
			zap.String("conversation_id", conversationID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return "", fmt.Errorf("%w: %v", ErrSendRejected, lastErr)
}

func (s *Sender) refreshMembers(ctx context.Context, accountID, conversationID string) {
	if s.bans == nil {
		return
	}
	members, err := s.holder.Bridge().GetConversationMembers(ctx, accountID, conversationID)
	if err != nil {
		s.logger.Warn("member lookup failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	uris := make([]string, 0, len(members))
	for _, m := range members {
		uris = append(uris, m.URI)
	}
	s.bans.RefreshBanStatus(ctx, accountID, uris)
}

func (s *Sender) optimistic(conversationID, serverID string) messages.Message {
	id := serverID
	if id == "" {
		id = uuid.NewString()
	}
	return messages.Message{
		ID:             id,
		ConversationID: conversationID,
		Timestamp:      time.Now().UnixMilli(),
		Status:         messages.StatusSent,
	}
}

func (s *Sender) append(accountID string, msg messages.Message) {
	if s.self != nil {
		msg.AuthorURI = s.self.SelfURI(accountID)
	}
	if s.appender != nil {
		s.appender.Append(accountID, msg)
	}
}

// sniffType classifies a local file by its content, not its extension.
func sniffType(path string) messages.Type {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return messages.TypeFile
	}
	switch {
	case strings.HasPrefix(mt.String(), "image/"):
		return messages.TypeImage
	case strings.HasPrefix(mt.String(), "video/"):
		return messages.TypeVideo
	case strings.HasPrefix(mt.String(), "audio/"):
		return messages.TypeAudio
	default:
		return messages.TypeFile
	}
}

func isBanError(err error) bool {
	text := strings.ToLower(err.Error())
	for _, kw := range banKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
